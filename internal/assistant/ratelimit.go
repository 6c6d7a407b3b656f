package assistant

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles calls to the wrapped client.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

var _ Client = (*RateLimitedClient)(nil)

// NewRateLimitedClient allows perSecond requests with a burst of one. A
// non-positive rate returns next unchanged.
func NewRateLimitedClient(next Client, perSecond float64) Client {
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		return next
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Chat waits for a token, then forwards. A wait that cannot finish before
// ctx ends reports the assistant as unavailable.
func (c *RateLimitedClient) Chat(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("%w: rate limited: %v", ErrAssistantUnavailable, err)
	}
	return c.next.Chat(ctx, req)
}
