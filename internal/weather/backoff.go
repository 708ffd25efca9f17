package weather

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how a single provider is attempted.
type RetryPolicy struct {
	AttemptTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
}

// DefaultRetryPolicy: 3s per attempt, two retries, 200ms base doubling, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		AttemptTimeout: 3 * time.Second,
		MaxRetries:     2,
		BaseDelay:      200 * time.Millisecond,
		Multiplier:     2,
		MaxDelay:       time.Second,
	}
}

// ceiling is the upper bound of the wait before retry n (0-based).
func (p RetryPolicy) ceiling(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(n)))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

// fullJitter picks a uniformly random wait in [0, d].
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
