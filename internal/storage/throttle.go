package storage

import (
	"context"

	"golang.org/x/time/rate"
)

type throttled struct {
	Backend
	limiter *rate.Limiter
}

// Throttled limits the rate of WriteRecord calls on b. Reads, listings and
// existence checks pass straight through. A nil limiter returns b.
func Throttled(b Backend, limiter *rate.Limiter) Backend {
	if limiter == nil {
		return b
	}
	return &throttled{Backend: b, limiter: limiter}
}

// NewWriteLimiter returns a limiter allowing perSecond writes with a burst
// of the same size, or nil when perSecond is not positive.
func NewWriteLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (t *throttled) WriteRecord(ctx context.Context, location, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Backend.WriteRecord(ctx, location, text)
}

// DirExists forwards to the wrapped backend when it has directories.
func (t *throttled) DirExists(ctx context.Context, dir string) (bool, error) {
	if dc, ok := t.Backend.(DirChecker); ok {
		return dc.DirExists(ctx, dir)
	}
	return t.ExistsUnder(ctx, dir+"/")
}
