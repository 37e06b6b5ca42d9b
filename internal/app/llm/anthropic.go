package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Defaults for the Anthropic adapter.
const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-3-haiku-20240307"
	AnthropicVersion        = "2023-06-01"
)

// ErrNoUserTurn means the conversation has nothing for the model to answer.
var ErrNoUserTurn = errors.New("conversation has no user turn")

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// AnthropicClient calls the Messages API through anthropic-sdk-go. System
// turns are lifted out of the message list into the request's system field.
type AnthropicClient struct {
	cfg    AnthropicConfig
	client anthropic.Client
	log    *zap.Logger
}

func NewAnthropicClient(cfg AnthropicConfig, httpClient *http.Client, logger *zap.Logger) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("anthropic-version", AnthropicVersion),
	)
	return &AnthropicClient{cfg: cfg, client: client, log: logger}
}

// anthropicTurns converts turns for the Messages API, which expects the
// conversation to open with a user turn. Leading assistant turns are
// dropped; a window cut at a bot reply produces them.
func anthropicTurns(msgs []Message) []anthropic.MessageParam {
	for len(msgs) > 0 && msgs[0].Role == RoleAssistant {
		msgs = msgs[1:]
	}
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

// Complete implements Completer.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	system, turns := splitSystem(req.Messages)
	messages := anthropicTurns(turns)
	if len(messages) == 0 {
		return Result{}, fmt.Errorf("anthropic: %w", ErrNoUserTurn)
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			c.log.Warn("completion request failed",
				zap.String("provider", "anthropic"),
				zap.String("model", model),
				zap.Int("status", apiErr.StatusCode))
			return Result{}, &APIError{
				Provider: "anthropic",
				Status:   apiErr.StatusCode,
				Message:  truncate(apiErr.Error(), maxProviderErrorExcerpt),
			}
		}
		return Result{}, fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		sb.WriteString(block.Text)
		found = true
	}
	if !found {
		return Result{}, fmt.Errorf("anthropic: %w: no text content block", ErrUnexpectedResponse)
	}

	out := Result{
		Text:         sb.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		TokenCount:   int(resp.Usage.OutputTokens),
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}
