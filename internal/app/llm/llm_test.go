package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]Family{
		"":             FamilyOpenAI,
		"openai":       FamilyOpenAI,
		"OpenAI":       FamilyOpenAI,
		"azure-openai": FamilyAzureOpenAI,
		"azureOpenAI":  FamilyAzureOpenAI,
		"anthropic":    FamilyAnthropic,
		"google":       FamilyGoogle,
		"bedrock":      FamilyBedrock,
		"local-llama":  Family("local-llama"),
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEndpoint(in), "input %q", in)
	}
}

type stubCompleter struct{ name string }

func (s stubCompleter) Complete(context.Context, Request) (Result, error) {
	return Result{Text: s.name}, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(FamilyAnthropic, stubCompleter{"anthropic"})
	r.SetFallback(stubCompleter{"openai"})

	c, fam, err := r.Lookup("anthropic")
	require.NoError(t, err)
	assert.Equal(t, FamilyAnthropic, fam)
	assert.Equal(t, stubCompleter{"anthropic"}, c)

	c, _, err = r.Lookup("custom-gateway")
	require.NoError(t, err)
	assert.Equal(t, stubCompleter{"openai"}, c)

	_, fam, err = r.Lookup("google")
	assert.ErrorIs(t, err, ErrUnsupportedEndpoint)
	assert.Equal(t, FamilyGoogle, fam)
}

func TestRegistryLookup_NoFallback(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Lookup("openai")
	assert.ErrorIs(t, err, ErrUnsupportedEndpoint)
}

// wireRequest is the subset of a provider request body the tests inspect.
type wireRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      json.RawMessage `json:"system"`
	Messages    []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func TestOpenAIComplete(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client(), nil)
	res, err := c.Complete(context.Background(), Request{
		Messages:    []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}},
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, 3, res.TokenCount)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, "gpt-4o-mini-2024", res.Model)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestOpenAIComplete_Azure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/my-deploy/chat/completions", r.URL.Path)
		assert.Equal(t, DefaultAzureAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "az-key", BaseURL: srv.URL, Azure: true}, srv.Client(), nil)
	res, err := c.Complete(context.Background(), Request{Model: "my-deploy", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, "my-deploy", res.Model)
}

func TestOpenAIComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no choices", 200, `{"choices":[]}`, ErrUnexpectedResponse},
		{"null content", 200, `{"choices":[{"message":{"content":null}}]}`, ErrUnexpectedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
			_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIComplete_NotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}

func TestOpenAIComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate limited", apiErr.Message)
	assert.Equal(t, "openai", apiErr.Provider)
}

func TestOpenAIComplete_NotConfigured(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{}, nil, nil)
	_, err := c.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnthropicComplete(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, AnthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{
			"model": "claude-3-haiku-20240307",
			"content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL}, srv.Client(), nil)
	res, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "Alice: hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "part one part two", res.Text)
	assert.Equal(t, 7, res.TokenCount)
	assert.Equal(t, "end_turn", res.FinishReason)

	assert.Equal(t, DefaultAnthropicModel, got.Model)
	assert.Contains(t, string(got.System), "be helpful")
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	for _, m := range got.Messages {
		assert.NotEqual(t, RoleSystem, m.Role)
	}
}

func TestAnthropicComplete_DropsLeadingAssistantTurns(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleAssistant, Content: "earlier answer"},
		{Role: RoleAssistant, Content: "another answer"},
		{Role: RoleUser, Content: "[Alice]: and now?"},
	}})
	require.NoError(t, err)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Contains(t, string(got.Messages[0].Content), "and now?")
}

func TestAnthropicComplete_OnlyAssistantTurns(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: "http://127.0.0.1:1"}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{
		{Role: RoleAssistant, Content: "hello"},
	}})
	assert.ErrorIs(t, err, ErrNoUserTurn)
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := "héllo wörld"
	got := truncate(s, 2)
	assert.Equal(t, "hé", got)
	assert.True(t, utf8.ValidString(truncate("ééé", 1)))
	assert.Equal(t, s, truncate(s, 100))
}

func TestAnthropicComplete_NoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"tool_use"}],"stop_reason":"tool_use"}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestAnthropicComplete_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
