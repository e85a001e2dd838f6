package utils

import (
	"math/rand/v2"
	"time"
)

// maxBackoff caps the delay between retries of remote calls.
const maxBackoff = 30 * time.Second

// Backoff returns the exponential delay before retry attempt n (1-based), with
// up to ±25% jitter. Attempt 0 or less returns 0.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2+1)) - d/4
	return d + jitter
}
