// Package llm is a small client for chat-completion APIs. The SMS
// pipeline only needs single-turn, non-streaming completions, so the
// surface is one [Provider] interface with Anthropic and Gemini
// implementations, plus a retrying wrapper.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Provider is the interface for LLM API backends. Implementations
// translate between the common types in this package and each
// vendor's wire format.
type Provider interface {
	// Complete sends a request and blocks until the full response
	// is available.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name identifies the backend in logs and the message log.
	Name() string
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role Role
	Text string
}

// UserMessage returns a user turn holding text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Request is a provider-independent completion request.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message

	// Temperature is optional; nil uses the provider default.
	Temperature *float64
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a completed generation.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}

// ProviderError is a non-2xx answer from a provider API, or an SDK error
// carrying an HTTP status.
type ProviderError struct {
	Provider   string // "anthropic", "gemini"
	StatusCode int
	Type       string // vendor error code: rate_limit_error, RESOURCE_EXHAUSTED, ...
	Message    string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("llm: ")
	if e.Provider != "" {
		b.WriteString(e.Provider + " ")
	}
	fmt.Fprintf(&b, "returned status %d", e.StatusCode)
	if e.Type != "" {
		fmt.Fprintf(&b, " (%s)", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// IsRateLimited reports a 429.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsOverloaded reports Anthropic's 529 or a 503 from Gemini.
func (e *ProviderError) IsOverloaded() bool {
	switch e.StatusCode {
	case 529, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// Retryable reports whether repeating the same request may succeed.
func (e *ProviderError) Retryable() bool {
	return e.IsRateLimited() || e.StatusCode >= 500
}
