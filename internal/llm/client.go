// Package llm wraps the chat-completion service. The orchestrator treats
// the service as a remote function: send model, messages, tools and a tool
// choice; receive one assistant message.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Tool choice values passed through to the wire protocol.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// CompletionClient is the single upstream dependency of the session
// advancer. Implementations must be safe for concurrent use: different
// sessions advance in parallel.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage, tools []openai.Tool, toolChoice string) (openai.ChatCompletionMessage, error)
}

// OpenAIClient implements CompletionClient over the OpenAI-style chat
// endpoint with linear-backoff retries for transient failures.
type OpenAIClient struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewOpenAIClient builds a client. An empty API key is a startup error: the
// daemon cannot run without credentials.
func NewOpenAIClient(apiKey, baseURL string, log *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("completion service credentials missing (OPENAI_API_KEY)")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		maxRetries: 3,
		retryDelay: time.Second,
		log:        log.With("component", "llm"),
	}, nil
}

// Complete performs one blocking chat completion and returns the assistant
// message. Retryable errors (rate limits, 5xx) are retried with linear
// backoff; everything else surfaces immediately.
func (c *OpenAIClient) Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage, tools []openai.Tool, toolChoice string) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
	}
	if toolChoice != "" && len(tools) > 0 {
		req.ToolChoice = toolChoice
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return openai.ChatCompletionMessage{}, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			c.log.Debug("retrying completion", "model", model, "attempt", attempt)
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return openai.ChatCompletionMessage{}, errors.New("completion returned no choices")
			}
			return resp.Choices[0].Message, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return openai.ChatCompletionMessage{}, fmt.Errorf("completion: %w", err)
		}
	}
	return openai.ChatCompletionMessage{}, fmt.Errorf("completion after %d attempts: %w", c.maxRetries, lastErr)
}

// isRetryable classifies transient failures worth another attempt.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "temporar")
}
