package subscription

import "time"

const day = 24 * time.Hour

// daysLeft is the number of whole days between now and end, never negative.
func daysLeft(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(end.Sub(now) / day)
}

func addDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * day)
}
