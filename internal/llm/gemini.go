package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// generator is the subset of *genai.Models used by [Gemini].
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements [Provider] on the Google Gen AI SDK.
type Gemini struct {
	models generator
}

// NewGemini creates a Gemini provider using the Gemini Developer API.
// An empty baseURL uses the SDK default endpoint.
func NewGemini(ctx context.Context, httpClient *http.Client, apiKey, baseURL string) (*Gemini, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		clientConfig.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("llm/gemini: creating client: %w", err)
	}
	return &Gemini{models: client.Models}, nil
}

// Name returns "gemini".
func (provider *Gemini) Name() string { return "gemini" }

// Complete sends a single generateContent call.
func (provider *Gemini) Complete(ctx context.Context, request Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(request.Messages))
	for _, message := range request.Messages {
		role := genai.Role(genai.RoleUser)
		if message.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Text, role))
	}

	generateConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(request.MaxTokens),
	}
	if request.System != "" {
		generateConfig.SystemInstruction = genai.NewContentFromText(request.System, genai.RoleUser)
	}
	if request.Temperature != nil {
		generateConfig.Temperature = genai.Ptr(float32(*request.Temperature))
	}

	result, err := provider.models.GenerateContent(ctx, request.Model, contents, generateConfig)
	if err != nil {
		return nil, toProviderError(err)
	}

	response := &Response{
		Text:  result.Text(),
		Model: result.ModelVersion,
	}
	if response.Model == "" {
		response.Model = request.Model
	}
	if len(result.Candidates) > 0 && result.Candidates[0] != nil {
		response.StopReason = string(result.Candidates[0].FinishReason)
	}
	if result.UsageMetadata != nil {
		response.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return response, nil
}

// toProviderError maps SDK API errors onto [ProviderError] so retry
// decisions are the same for every backend.
func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "gemini", StatusCode: apiErr.Code, Type: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ProviderError{Provider: "gemini", StatusCode: apiErrPtr.Code, Type: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("llm/gemini: %w", err)
}
