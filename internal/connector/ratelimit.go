package connector

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces upstream requests at least minInterval apart and counts them.
// One Limiter is shared by every entity kind of a connection.
type Limiter struct {
	lim   *rate.Limiter
	calls atomic.Int64
}

// NewLimiter creates a limiter allowing one request per minInterval.
// A non-positive interval disables spacing.
func NewLimiter(minInterval time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{lim: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be issued or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	l.calls.Add(1)
	return nil
}

// Calls returns the number of requests admitted so far
func (l *Limiter) Calls() int64 {
	return l.calls.Load()
}
