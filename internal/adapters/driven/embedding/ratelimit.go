package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// RateLimitedProvider throttles calls to a remote provider with a token bucket.
type RateLimitedProvider struct {
	next    driven.EmbeddingProvider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most perSecond calls start each second,
// with bursts up to burst. A non-positive rate returns p unchanged.
func WithRateLimit(p driven.EmbeddingProvider, perSecond float64, burst int) driven.EmbeddingProvider {
	if p == nil || perSecond <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    p,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Embed waits for a token, then calls through.
func (r *RateLimitedProvider) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The wait would outlast the caller's deadline.
		return nil, fmt.Errorf("%w: embedding rate limit: %w", domain.ErrResourceExhausted, err)
	}
	return r.next.Embed(ctx, content, modality)
}

// ModelName returns the wrapped provider's model name.
func (r *RateLimitedProvider) ModelName() string {
	return r.next.ModelName()
}

// Close closes the wrapped provider.
func (r *RateLimitedProvider) Close() error {
	return r.next.Close()
}
