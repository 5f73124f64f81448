package providers

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a process-local token-bucket
// limiter on outbound calls. Grounded on the adaptive rate limiter pattern
// used to guard model.Client calls in the wider example pack (a
// token-bucket sitting at the provider boundary, blocking callers until
// capacity is available); simplified to a fixed requests-per-second
// budget instead of an adaptive tokens-per-minute one, since this core
// has no Non-goal-excluded cluster coordination to drive an adaptive
// scheme off of.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps next with a limiter allowing rps requests
// per second (burst equal to the integer ceiling of rps, minimum 1). A
// non-positive rps disables limiting and returns next unwrapped.
func NewRateLimitedProvider(next Provider, rps float64) Provider {
	if rps <= 0 {
		return next
	}
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimitedProvider) Name() string         { return r.next.Name() }
func (r *RateLimitedProvider) DefaultModel() string { return r.next.DefaultModel() }

func (r *RateLimitedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Chat(ctx, req)
}

func (r *RateLimitedProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.ChatStream(ctx, req, onChunk)
}
