// Package ratelimit provides the process-wide request budget shared by every
// marketplace call.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter spaces call starts evenly: with burst 1, at most rps calls begin in any one-second window.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a limiter allowing rps calls per second. A non-positive rps disables limiting.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the next call may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
