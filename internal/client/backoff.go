package client

import "time"

// Delay returns the reconnect delay for the given zero-based attempt:
// min(base * 2^attempt, max). Non-decreasing until it saturates.
func Delay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
