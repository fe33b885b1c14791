package drive

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 4
	baseBackoff       = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
)

// withRetry runs fn until it succeeds, returns a non-retryable error, or the retry budget is spent.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func() error) error {
	var attempt int
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return classify(op, err)
		}

		err := classify(op, fn())
		if err == nil {
			return nil
		}

		if ctx.Err() != nil || !isRetryable(err) || attempt >= g.maxRetries {
			if attempt > 0 {
				g.logger.Error("request failed after retries", "op", op, "attempts", attempt+1, "error", err)
			}
			return err
		}

		backoff := calcBackoff(attempt, err)
		g.logger.Warn("retrying", "op", op, "attempt", attempt+1, "backoff", backoff, "error", err)

		if sleepErr := g.sleepFunc(ctx, backoff); sleepErr != nil {
			return classify(op, sleepErr)
		}
		attempt++
	}
}

// calcBackoff honours Retry-After when Drive sends one and otherwise computes
// exponential backoff with ±25% jitter, capped at maxBackoff.
func calcBackoff(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return min(apiErr.RetryAfter, maxBackoff)
	}

	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
