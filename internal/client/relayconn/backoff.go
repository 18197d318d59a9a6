package relayconn

import (
	"math/rand"
	"time"
)

// Backoff returns the delay before reconnect attempt n (0-based):
// exponential growth from min, capped at max, with ±20% jitter so a
// fleet of clients does not reconnect in lockstep after a relay
// restart. The result never exceeds max.
func Backoff(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}

	d := max
	if attempt < 30 {
		if shifted := min << uint(attempt); shifted > 0 && shifted < max {
			d = shifted
		}
	}

	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	d += jitter
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}
