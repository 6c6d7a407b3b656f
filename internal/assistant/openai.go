package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Defaults target the DeepSeek OpenAI-compatible endpoint.
const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"
)

// Config configures an OpenAI-compatible chat completion client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// HTTPClient overrides the transport; tests point it at httptest.
	HTTPClient *http.Client
}

// OpenAIClient implements Client over any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient validates cfg and constructs the client.
func NewOpenAIClient(cfg Config, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredential
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
		logger.Warn("assistant model not set, using default", "model", DefaultModel)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	logger.Info("initializing assistant client", "base_url", cfg.BaseURL, "model", cfg.Model)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Chat sends the system prompt and a user turn carrying the JSON context.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	user, err := UserMessage(req)
	if err != nil {
		return Response{}, err
	}
	c.logger.Debug("sending assistant request", "model", c.model, "parameters", len(req.Context.Parameters))
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		c.logger.Error("assistant call failed", "error", err)
		return Response{}, fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("assistant returned no choices")
		return Response{}, ErrNoChoices
	}
	c.logger.Debug("assistant replied", "finish_reason", resp.Choices[0].FinishReason)
	return ParseResponse(resp.Choices[0].Message.Content), nil
}

// UserMessage renders the user turn: the context as JSON followed by the
// message.
func UserMessage(req Request) (string, error) {
	ctxJSON, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("encode assistant context: %w", err)
	}
	return fmt.Sprintf("Context:\n%s\n\nUser message:\n%s", ctxJSON, req.Message), nil
}
