package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderFallback  = "fallback"
)

// Sampling settings shared by every provider.
const (
	defaultTemperature = 0.8
	defaultMaxTokens   = 1000
)

var (
	// ErrUnsupportedProvider is returned for provider names outside the known set.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrProviderNotConfigured is returned when a known provider has no credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrEmptyCompletion is returned when a provider answers with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Completion is a single provider call.
type Completion struct {
	Model        string
	SystemPrompt string
	Message      string
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, in Completion) (string, error)
}

// DefaultModels maps provider name to the model used when neither the
// character nor the request names one.
type DefaultModels map[string]string

// Selection is the outcome of provider/model resolution.
type Selection struct {
	Provider string
	Model    string
}

// Supported reports whether name is a provider this service knows.
func Supported(name string) bool {
	switch name {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// Resolve picks the provider and model for a reply.
//
// Provider: character.ai_provider, then the requested provider, then openai.
// Model: character.ai_model, then the requested model, then the provider's
// default.
func Resolve(c *domain.Character, requestedProvider, requestedModel string, defaults DefaultModels) Selection {
	provider := ProviderOpenAI
	if c != nil && strings.TrimSpace(c.AIProvider) != "" {
		provider = c.AIProvider
	} else if strings.TrimSpace(requestedProvider) != "" {
		provider = requestedProvider
	}
	provider = strings.ToLower(strings.TrimSpace(provider))

	model := ""
	switch {
	case c != nil && strings.TrimSpace(c.AIModel) != "":
		model = strings.TrimSpace(c.AIModel)
	case strings.TrimSpace(requestedModel) != "":
		model = strings.TrimSpace(requestedModel)
	default:
		model = defaults[provider]
	}
	return Selection{Provider: provider, Model: model}
}
