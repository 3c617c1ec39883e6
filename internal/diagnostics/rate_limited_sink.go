package diagnostics

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedSink throttles how often the wrapped sink actually fires,
// so a pathological caller that never releases handles can't turn a
// leak storm into a logging or network storm of its own. Metrics
// accounting for every eviction happens upstream in the eviction loop
// regardless of whether a given warning makes it through the limiter.
type RateLimitedSink struct {
	inner   Sink
	limiter *rate.Limiter
}

// NewRateLimitedSink wraps inner with a token-bucket limiter allowing
// up to burst warnings immediately and perSecond thereafter.
func NewRateLimitedSink(inner Sink, perSecond float64, burst int) *RateLimitedSink {
	return &RateLimitedSink{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimitedSink) Leak(ctx context.Context, w LeakWarning) error {
	if !r.limiter.Allow() {
		return nil
	}
	return r.inner.Leak(ctx, w)
}
