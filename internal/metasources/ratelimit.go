package metasources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is the token bucket every source client throttles its
// outbound requests through. Each catalog publishes its own allowance
// (OpenAlex and Crossref ~10 req/s on the polite pool, NCBI 3 req/s
// without an API key, arXiv 3 req/s), so each HTTPClient owns one
// limiter configured from its source's Config.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained
// requests with the given burst. A burst below 1 is raised to 1 so the
// bucket can always admit a request eventually.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately, consuming a
// token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
