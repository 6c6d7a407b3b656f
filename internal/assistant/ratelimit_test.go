package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitedClientPassThrough(t *testing.T) {
	static := NewStaticClient()
	assert.Same(t, Client(static), NewRateLimitedClient(static, 0))
	assert.Same(t, Client(static), NewRateLimitedClient(static, -2))
}

func TestRateLimitedClientThrottles(t *testing.T) {
	static := NewStaticClient()
	client := NewRateLimitedClient(static, 1.0/3600)

	resp, err := client.Chat(context.Background(), Request{Message: "first"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Chat(ctx, Request{Message: "second"})
	require.ErrorIs(t, err, ErrAssistantUnavailable)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, static.Requests(), 1, "throttled request must not reach the client")
}
