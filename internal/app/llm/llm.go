// Package llm adapts chat-completion providers behind one Completer
// interface. Each adapter decodes its provider's payload strictly and
// returns a normalized Result; anything it cannot recognise is an error.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Result is the normalized completion output.
type Result struct {
	Text         string
	Model        string
	TokenCount   int
	FinishReason string
}

// Completer produces one completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

var (
	// ErrNotConfigured means the provider has no API key.
	ErrNotConfigured = errors.New("provider is not configured")
	// ErrUnexpectedResponse means the provider answered with a payload
	// that does not have the documented shape.
	ErrUnexpectedResponse = errors.New("unexpected provider response")
	// ErrUnsupportedEndpoint means no adapter serves the endpoint family.
	ErrUnsupportedEndpoint = errors.New("unsupported endpoint")
)

// APIError is a non-2xx provider response.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Message)
}

// Family is a normalized endpoint family.
type Family string

const (
	FamilyOpenAI      Family = "openAI"
	FamilyAzureOpenAI Family = "azureOpenAI"
	FamilyAnthropic   Family = "anthropic"
	FamilyGoogle      Family = "google"
	FamilyBedrock     Family = "bedrock"
)

// NormalizeEndpoint maps a bot's configured endpoint onto a family. An empty
// endpoint is OpenAI; unknown values pass through unchanged.
func NormalizeEndpoint(endpoint string) Family {
	e := strings.TrimSpace(endpoint)
	switch strings.ToLower(e) {
	case "":
		return FamilyOpenAI
	case "openai":
		return FamilyOpenAI
	case "azure-openai", "azureopenai":
		return FamilyAzureOpenAI
	case "anthropic":
		return FamilyAnthropic
	case "google":
		return FamilyGoogle
	case "bedrock":
		return FamilyBedrock
	}
	return Family(e)
}

// Registry selects a Completer by endpoint family. Families without an
// adapter of their own fall back to the OpenAI-compatible one, except the
// ones listed as unsupported.
type Registry struct {
	byFamily    map[Family]Completer
	fallback    Completer
	unsupported map[Family]bool
}

// NewRegistry returns an empty registry. Google and Bedrock are unsupported
// until an adapter is registered for them.
func NewRegistry() *Registry {
	return &Registry{
		byFamily: map[Family]Completer{},
		unsupported: map[Family]bool{
			FamilyGoogle:  true,
			FamilyBedrock: true,
		},
	}
}

// Register binds c to family.
func (r *Registry) Register(family Family, c Completer) {
	r.byFamily[family] = c
	delete(r.unsupported, family)
}

// SetFallback sets the completer used for unknown families.
func (r *Registry) SetFallback(c Completer) {
	r.fallback = c
}

// Lookup returns the completer for a bot endpoint.
func (r *Registry) Lookup(endpoint string) (Completer, Family, error) {
	fam := NormalizeEndpoint(endpoint)
	if c, ok := r.byFamily[fam]; ok {
		return c, fam, nil
	}
	if r.unsupported[fam] || r.fallback == nil {
		return nil, fam, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, fam)
	}
	return r.fallback, fam, nil
}

// splitSystem separates system turns from the conversation, joining them
// with blank lines.
func splitSystem(msgs []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
