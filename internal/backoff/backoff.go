// Package backoff computes the exponential restart delay for the
// supervisor's crash-recovery loop.
package backoff

import (
	"math"
	"time"
)

// Delay returns the wait before restart attempt number attempts (1-based).
// delay_ms = initial × multiplier^clamp(attempts-1, 0, 10).
func Delay(attempts uint32, initial time.Duration, multiplier float64) time.Duration {
	p := int(attempts) - 1
	if p < 0 {
		p = 0
	}
	if p > 10 {
		p = 10
	}
	ms := float64(initial.Milliseconds()) * math.Pow(multiplier, float64(p))
	return time.Duration(ms) * time.Millisecond
}
