package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// Failure reasons, used as log field and metric label.
const (
	reasonNotConfigured = "not_configured"
	reasonUnsupported   = "unsupported_provider"
	reasonProviderError = "provider_error"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_generations_total",
			Help: "AI reply generations by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_generation_duration_seconds",
			Help:    "Latency of provider calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration)
}

// Request asks for an in-character reply to Message.
type Request struct {
	Character *domain.Character
	Message   string
	History   []domain.Message // oldest first
	Provider  string
	Model     string
}

// Response is always success-shaped; Error is set when Content is the
// fallback text.
type Response struct {
	Content   string `json:"content"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Dispatcher routes generation requests to configured providers.
type Dispatcher struct {
	providers map[string]Provider
	defaults  DefaultModels
	now       func() time.Time
}

// NewDispatcher builds a dispatcher over the given providers.
func NewDispatcher(defaults DefaultModels, providers ...Provider) *Dispatcher {
	d := &Dispatcher{
		providers: make(map[string]Provider, len(providers)),
		defaults:  defaults,
		now:       time.Now,
	}
	for _, p := range providers {
		if p != nil {
			d.providers[p.Name()] = p
		}
	}
	return d
}

// Configured lists the provider names that have credentials.
func (d *Dispatcher) Configured() []string {
	out := make([]string, 0, len(d.providers))
	for _, name := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		if _, ok := d.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// FallbackContent is the reply used when no provider could answer.
func FallbackContent(name string) string {
	return fmt.Sprintf("*%s seems to be thinking deeply and will respond shortly...*", name)
}

// Generate produces a reply. Provider failures never surface as errors; they
// yield the fallback response. An error is returned only for unusable input.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Character == nil {
		return nil, errors.New("ai: character is required")
	}
	sel := Resolve(req.Character, req.Provider, req.Model, d.defaults)

	ctx, span := otel.Tracer("ai/Dispatcher").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("ai.provider", sel.Provider),
			attribute.String("ai.model", sel.Model),
			attribute.String("character.id", req.Character.ID),
		),
	)
	defer span.End()

	lg := loggerFrom(ctx).With().
		Str("provider", sel.Provider).
		Str("model", sel.Model).
		Str("character_id", req.Character.ID).
		Logger()

	fail := func(reason string, err error) *Response {
		label := sel.Provider
		if !Supported(label) {
			label = "unknown"
		}
		generationsTotal.WithLabelValues(label, reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		lg.Warn().Err(err).Str("reason", reason).Msg("ai generation fell back")
		return &Response{
			Content:   FallbackContent(req.Character.Name),
			Provider:  ProviderFallback,
			Model:     "none",
			Timestamp: d.now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		}
	}

	if !Supported(sel.Provider) {
		return fail(reasonUnsupported, fmt.Errorf("%w: %q", ErrUnsupportedProvider, sel.Provider)), nil
	}
	p, ok := d.providers[sel.Provider]
	if !ok {
		return fail(reasonNotConfigured, fmt.Errorf("%w: %s", ErrProviderNotConfigured, sel.Provider)), nil
	}

	start := time.Now()
	content, err := p.Complete(ctx, Completion{
		Model:        sel.Model,
		SystemPrompt: BuildSystemPrompt(req.Character, req.History),
		Message:      req.Message,
	})
	generationDuration.WithLabelValues(sel.Provider).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(content) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		return fail(reasonProviderError, fmt.Errorf("%s: %w", sel.Provider, err)), nil
	}

	generationsTotal.WithLabelValues(sel.Provider, "ok").Inc()
	return &Response{
		Content:   strings.TrimSpace(content),
		Provider:  sel.Provider,
		Model:     sel.Model,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	}, nil
}

// loggerFrom returns the request logger stored in ctx, or the global one.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
