package jobs

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how a failed job is retried: exponential backoff with
// jitter, capped attempts and delay. Validation failures are excluded from
// retry by the dispatcher; this policy only shapes the delays.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean no retry.
	MaxAttempts int

	// InitialMs is the delay after the first failure, in milliseconds.
	InitialMs float64

	// MaxMs caps the computed delay.
	MaxMs float64

	// Factor is the exponential multiplier per attempt.
	Factor float64

	// Jitter is the randomization fraction (0.0 to 1.0) added to the delay.
	Jitter float64
}

// DefaultRetryPolicy returns the stock policy: 3 attempts, 100ms initial,
// 30s cap, factor 2, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialMs:   100,
		MaxMs:       30000,
		Factor:      2,
		Jitter:      0.1,
	}
}

// Delay computes the backoff after the given failed attempt number
// (attempts start at 1, so the first failure waits InitialMs).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// delayWithRand computes the delay from a provided random value, for
// deterministic tests. randomValue is in [0.0, 1.0).
func (p RetryPolicy) delayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(p.MaxMs, base+jitter)
	return time.Duration(math.Round(total)) * time.Millisecond
}
