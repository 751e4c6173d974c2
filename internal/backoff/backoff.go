// Package backoff computes retry delays for failed job attempts. It is a
// pure, dependency-free generalization of the teacher's retryDelay helper
// (internal/scheduler/worker.go): exponential backoff capped at a maximum,
// without the teacher's jitter or fixed one-hour ceiling so the formula
// matches the closed form monque's callers rely on for testing.
package backoff

import "time"

// Delay returns the backoff delay for the failCount'th failure:
// min(2^failCount * base, maxDelay).
func Delay(failCount int, base, maxDelay time.Duration) time.Duration {
	if failCount < 0 {
		failCount = 0
	}

	// Guard against overflow for large failCount: once the exponent alone
	// would exceed maxDelay, stop multiplying and return the cap.
	d := base
	for i := 0; i < failCount; i++ {
		if d >= maxDelay {
			return maxDelay
		}
		d *= 2
		if d <= 0 { // overflowed
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// NextRunAt returns now advanced by Delay(failCount, base, maxDelay).
func NextRunAt(now time.Time, failCount int, base, maxDelay time.Duration) time.Time {
	return now.Add(Delay(failCount, base, maxDelay))
}
