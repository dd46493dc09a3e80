package task

import "time"

// Backoff returns the delay before retrying after the given failed attempt:
// base * factor^(attempt-1). With a five minute base and factor four that is
// 5, 20, 80 minutes.
func Backoff(attempt int, base time.Duration, factor int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if factor < 1 {
		factor = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= time.Duration(factor)
	}
	return d
}
