package common

import "time"

// IsFresh returns true if the given timestamp is within the TTL.
// A non-positive TTL means entries never go stale.
func IsFresh(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(updated) < ttl
}
