package search

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// jitter sleeps a random duration in [min, max] before each request.
type jitter struct {
	min time.Duration
	max time.Duration
}

func (j jitter) Wait(ctx context.Context) error {
	return sleep(ctx, j.next())
}

func (j jitter) next() time.Duration {
	return randomBetween(j.min, j.max)
}

func randomBetween(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// backoff returns base * factor^retry. retryAfter is a floor and max caps
// the result.
func backoff(base time.Duration, factor float64, max time.Duration, retry int, retryAfter time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := time.Duration(float64(base) * math.Pow(factor, float64(retry)))
	if delay < 0 || (max > 0 && delay > max) {
		delay = max
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
