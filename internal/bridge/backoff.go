package bridge

import "time"

// ReconnectDelay returns base × 2^(attempt−1). Attempts below 1 are treated
// as the first attempt; the result saturates instead of overflowing.
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d > time.Duration(1<<62)/2 {
			return time.Duration(1<<63 - 1)
		}
		d *= 2
	}
	return d
}
