package webhook

import "time"

// baseBackoff is the wait before the second attempt; each further attempt
// doubles it.
const baseBackoff = 2 * time.Second

// Backoff returns the wait inserted after the given failed attempt
// (1-based): 2s after the first, 4s after the second, 8s after the third.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return baseBackoff
	}
	return baseBackoff << (attempt - 1)
}
