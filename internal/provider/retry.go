package provider

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls transport-level retries: exponential backoff with
// jitter, applied to retryable HTTP statuses and network errors.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Base:       500 * time.Millisecond,
		Cap:        8 * time.Second,
	}
}

var retryableStatuses = map[int]struct{}{
	408: {}, 409: {}, 425: {}, 429: {},
	500: {}, 502: {}, 503: {}, 504: {},
}

// RetryableStatus reports whether an HTTP status warrants another attempt.
func RetryableStatus(status int) bool {
	_, ok := retryableStatuses[status]
	return ok
}

// Backoff returns the sleep before the given retry (0-based), capped and
// jittered into [d/2, d).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.Base << retry
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Sleep waits out the backoff, returning early with the context's error
// when it is cancelled.
func (p RetryPolicy) Sleep(ctx context.Context, retry int) error {
	t := time.NewTimer(p.Backoff(retry))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
