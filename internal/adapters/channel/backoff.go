package channel

import "time"

// backoff doubles initial per attempt, capped at ceiling.
func backoff(initial, ceiling time.Duration, attempt int) time.Duration {
	d := initial * time.Duration(1<<min(attempt, 16))
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
