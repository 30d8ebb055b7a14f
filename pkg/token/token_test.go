package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACMaker_GenerateAndParse(t *testing.T) {
	maker := NewHMACMaker("test_secret_key_1234567890", 15*time.Minute)

	tests := []struct {
		name     string
		userID   string
		username string
		isAdmin  bool
	}{
		{name: "admin user", userID: "0190c6a4-0000-7000-8000-000000000001", username: "admin", isAdmin: true},
		{name: "regular user", userID: "0190c6a4-0000-7000-8000-000000000002", username: "alice"},
		{name: "email as username", userID: "0190c6a4-0000-7000-8000-000000000003", username: "bob@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := maker.Generate(tt.userID, tt.username, tt.isAdmin)
			require.NoError(t, err)

			claims, err := maker.Parse(tok)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.Subject)
			assert.Equal(t, tt.username, claims.Username)
			assert.Equal(t, tt.isAdmin, claims.IsAdmin)
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
		})
	}
}

func TestHMACMaker_Generate_RequiresUserID(t *testing.T) {
	_, err := NewHMACMaker("k", time.Minute).Generate("", "alice", false)
	require.Error(t, err)
}

func TestHMACMaker_Parse_Rejects(t *testing.T) {
	maker := NewHMACMaker("first_secret", 15*time.Minute)
	valid, err := maker.Generate("u1", "alice", false)
	require.NoError(t, err)

	expired, err := NewHMACMaker("first_secret", -time.Hour).Generate("u1", "alice", false)
	require.NoError(t, err)

	otherSecret, err := NewHMACMaker("second_secret", 15*time.Minute).Generate("u1", "alice", false)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "invalid.token.here"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: otherSecret},
		{name: "tampered", token: valid + "x"},
		{name: "alg none", token: noneAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.Parse(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}
