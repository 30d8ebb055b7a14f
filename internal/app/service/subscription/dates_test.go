package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"past", now.Add(-72 * time.Hour), 0},
		{"now", now, 0},
		{"less than a day", now.Add(23 * time.Hour), 0},
		{"exactly ten days", now.Add(10 * day), 10},
		{"ten days and change", now.Add(10*day + 23*time.Hour), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, daysLeft(tt.end, now))
		})
	}
}

func TestAddDays(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), addDays(start, 30))
	require.Equal(t, start, addDays(start, 0))
}
