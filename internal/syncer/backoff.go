package syncer

import "time"

// Backoff returns the delay before the next attempt after attempt failures:
// base doubled per failure, capped at max. There is no attempt limit; the
// delay just stops growing.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
