package password

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		attempt string
		wantErr bool
	}{
		{name: "matching password", stored: "correct-horse", attempt: "correct-horse"},
		{name: "wrong password", stored: "correct-horse", attempt: "battery-staple", wantErr: true},
		{name: "case sensitive", stored: "Secret123", attempt: "secret123", wantErr: true},
		{name: "unicode", stored: "пароль-тест", attempt: "пароль-тест"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := Hash(tt.stored)
			require.NoError(t, err)
			assert.NotEqual(t, tt.stored, hash)

			err = Compare(hash, tt.attempt)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, bcrypt.ErrMismatchedHashAndPassword))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestHash_IsSalted(t *testing.T) {
	h1, err := Hash("same-password")
	require.NoError(t, err)
	h2, err := Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCompare_InvalidHash(t *testing.T) {
	require.Error(t, Compare("not-a-bcrypt-hash", "whatever"))
}
