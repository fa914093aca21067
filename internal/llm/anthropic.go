package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultAnthropicBaseURL is the public Anthropic API root.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	// AnthropicVersion is sent as the anthropic-version header.
	AnthropicVersion = "2023-06-01"
)

// Anthropic implements [Provider] for the Anthropic Messages API.
type Anthropic struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewAnthropic creates an Anthropic provider. An empty baseURL uses
// [DefaultAnthropicBaseURL]; a nil httpClient uses http.DefaultClient.
func NewAnthropic(httpClient *http.Client, apiKey, baseURL string) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &Anthropic{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name returns "anthropic".
func (provider *Anthropic) Name() string { return "anthropic" }

// Complete sends a non-streaming request and returns the full response.
// The response text is the concatenation of the returned text blocks.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	payload, err := json.Marshal(provider.buildRequest(request))
	if err != nil {
		return nil, fmt.Errorf("llm/anthropic: encode request: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm/anthropic: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-api-key", provider.apiKey)
	httpRequest.Header.Set("anthropic-version", AnthropicVersion)

	httpResponse, err := provider.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("llm/anthropic: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode/100 != 2 {
		return nil, anthropicError(httpResponse)
	}

	var wireResponse anthropicResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("llm/anthropic: decode response: %w", err)
	}
	return wireResponse.toResponse(), nil
}

// anthropicError builds a ProviderError from an error reply. Anthropic wraps
// errors as {"type":"error","error":{"type":...,"message":...}}; proxies in
// front of it may answer with plain text, which becomes the message.
func anthropicError(httpResponse *http.Response) error {
	const maxErrorBody = 4 << 10
	raw, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBody))

	providerErr := &ProviderError{Provider: "anthropic", StatusCode: httpResponse.StatusCode}
	var envelope anthropicErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		providerErr.Type = envelope.Error.Type
		providerErr.Message = envelope.Error.Message
		return providerErr
	}
	providerErr.Message = strings.TrimSpace(string(raw))
	return providerErr
}

// buildRequest converts our types to Anthropic wire format.
func (provider *Anthropic) buildRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		System:      request.System,
		Temperature: request.Temperature,
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
			Role:    string(message.Role),
			Content: []anthropicContentBlock{{Type: "text", Text: message.Text}},
		})
	}
	return wireRequest
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (wireResponse *anthropicResponse) toResponse() *Response {
	var text strings.Builder
	for _, block := range wireResponse.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Text:       text.String(),
		Model:      wireResponse.Model,
		StopReason: wireResponse.StopReason,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}
}
