package ai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls the Chat Completions API.
type OpenAIProvider struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAIProvider builds a provider for apiKey. baseURL overrides the API
// endpoint (proxies, tests); empty keeps the default.
func NewOpenAIProvider(apiKey, baseURL string, maxTokens int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), maxTokens: maxTokens}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, in Completion) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: in.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: in.Message},
		},
		MaxTokens:        p.maxTokens,
		Temperature:      defaultTemperature,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
