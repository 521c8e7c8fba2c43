package ai

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds a provider for apiKey. An empty baseURL uses the
// public Gemini API endpoint.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, in Completion) (string, error) {
	temperature := float32(defaultTemperature)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(in.SystemPrompt, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   defaultMaxTokens,
	}
	res, err := p.client.Models.GenerateContent(ctx, in.Model, genai.Text(in.Message), config)
	if err != nil {
		return "", err
	}
	// Blocked prompts come back without candidates.
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
