package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// Defaults for the OpenAI adapter.
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultAzureAPIVersion  = "2024-06-01"
	maxProviderErrorExcerpt = 300
)

// OpenAIConfig configures an OpenAI or Azure OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// Azure switches to deployment URLs and the api-key header. Model is
	// used as the deployment name.
	Azure      bool
	APIVersion string
}

// OpenAIClient calls the chat completions API through the openai-go SDK.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client openai.Client
	log    *zap.Logger
}

// NewOpenAIClient returns a client. A nil httpClient uses http.DefaultClient;
// deadlines come from the request context. SDK retries are off so the
// engine's per-call timeout is the only budget.
func NewOpenAIClient(cfg OpenAIConfig, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	if cfg.BaseURL == "" && !cfg.Azure {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Azure && cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.Azure {
		opts = append(opts,
			azure.WithEndpoint(cfg.BaseURL, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts,
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAIClient{cfg: cfg, client: openai.NewClient(opts...), log: logger}
}

func (c *OpenAIClient) provider() string {
	if c.cfg.Azure {
		return "azure-openai"
	}
	return "openai"
}

func openAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, fmt.Errorf("%s: %w", c.provider(), ErrNotConfigured)
	}
	if c.cfg.Azure && c.cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("%s: %w: base url is required", c.provider(), ErrNotConfigured)
	}
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    openAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := strings.TrimSpace(apiErr.Message)
			if msg == "" {
				msg = truncate(apiErr.Error(), maxProviderErrorExcerpt)
			}
			c.log.Warn("completion request failed",
				zap.String("provider", c.provider()),
				zap.String("model", model),
				zap.Int("status", apiErr.StatusCode))
			return Result{}, &APIError{Provider: c.provider(), Status: apiErr.StatusCode, Message: msg}
		}
		return Result{}, fmt.Errorf("%s request: %w", c.provider(), err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Result{}, fmt.Errorf("%s: %w: no message content in choices", c.provider(), ErrUnexpectedResponse)
	}

	out := Result{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		TokenCount:   int(resp.Usage.CompletionTokens),
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}
