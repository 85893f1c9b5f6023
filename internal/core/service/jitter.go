package service

import (
	"math/rand/v2"
	"time"
)

// Jitter returns a uniformly random delay in [0, max). Front-ends use it
// to pace sends so that bursts do not look automated.
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
