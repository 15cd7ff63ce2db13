package timeutil

import (
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in durations, or zero if empty.
// It does not mutate the input slice.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a uniformly distributed random duration in [0, max).
// Non-positive max returns 0.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before the next attempt given
// the number of prior backoffs, additional jitter budget, a seeded RNG, and
// the backoff shape. backoffCount <= 0 is treated as 1 (no growth applied).
// The growth is capped at backoffParam.MaxDuration(); jitter is added on top
// of the capped base delay, uniformly in [0, jitter).
func ExponentialBackoffDelay(backoffCount int, jitter time.Duration, rng rand.Rand, backoffParam BackoffParam) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}

	base := float64(backoffParam.InitialDuration())
	for i := 1; i < backoffCount; i++ {
		base *= backoffParam.Multiplier()
	}

	delay := time.Duration(base)
	if max := backoffParam.MaxDuration(); max > 0 && delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}

	delay += ComputeJitter(jitter, rng)
	if delay < 0 {
		delay = 0
	}
	return delay
}
