// Package backoff computes exponential retry delays shared by the background
// workers.
package backoff

import (
	"math"
	"time"
)

// Max caps the delay between two attempts
const Max = 24 * time.Hour

// Exponential returns the delay after the passed failed attempt:
// initial * 2^(attempt-1), capped at Max
func Exponential(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(Max) {
		return Max
	}
	return time.Duration(d)
}
