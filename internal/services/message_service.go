// Package services – MessageService
//
// This file implements MessageService, which owns the lifecycle of chat
// messages: sending a user message and persisting the in-character reply,
// regenerating the newest reply (keeping the superseded text as a revision),
// cursor pagination over history and single-message deletion.
//
// Reply generation never fails the request. The dispatcher already turns
// provider failures into a fallback reply; anything escaping it (an error or
// a panic) is replaced by a plain apology so the exchange is still recorded.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/user identifiers and the chosen provider.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/ai"
	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
)

// ApologyContent replaces the reply when generation itself breaks down.
const ApologyContent = "I apologize, but I'm having trouble responding right now. Please try again."

// ReplyGenerator produces an in-character reply. *ai.Dispatcher satisfies it.
type ReplyGenerator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Response, error)
}

// MessageService coordinates message persistence and reply generation.
type MessageService struct {
	DB *gorm.DB
	AI ReplyGenerator

	// HistoryLimit is how many prior messages are handed to the prompt builder.
	HistoryLimit int
	// MaxMessageRunes caps user input; 0 disables the check.
	MaxMessageRunes int
	// IdempotencyTTL is how long a send result can be replayed.
	IdempotencyTTL time.Duration

	DefaultLimit int
	MaxLimit     int
}

// NewMessageService constructs a MessageService with defaults.
func NewMessageService(db *gorm.DB, gen ReplyGenerator) *MessageService {
	return &MessageService{
		DB:              db,
		AI:              gen,
		HistoryLimit:    20,
		MaxMessageRunes: 4000,
		IdempotencyTTL:  24 * time.Hour,
		DefaultLimit:    50,
		MaxLimit:        100,
	}
}

// CharacterRef is the minimal character identity returned with replies.
type CharacterRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func refOf(c *domain.Character) CharacterRef {
	return CharacterRef{ID: c.ID, Name: c.Name, AvatarURL: c.AvatarURL}
}

// SendInput is a chat send request. IdempotencyScope and IdempotencyKey are
// optional; when both are set a repeated call replays the first result.
type SendInput struct {
	ConversationID   string
	Message          string
	Provider         string
	Model            string
	IdempotencyScope string
	IdempotencyKey   string
}

// SendResult is the persisted exchange.
type SendResult struct {
	UserMessage      *domain.Message `json:"user_message"`
	AssistantMessage *domain.Message `json:"assistant_message"`
	Character        CharacterRef    `json:"character"`
	Replayed         bool            `json:"-"`
}

// RegenerateInput selects the conversation and optionally the provider.
type RegenerateInput struct {
	ConversationID string
	Provider       string
	Model          string
}

// RegenerateResult carries the overwritten assistant message.
type RegenerateResult struct {
	AssistantMessage *domain.Message `json:"assistant_message"`
	Character        CharacterRef    `json:"character"`
}

// MessagePage is one slice of history in chronological order.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Limit    int              `json:"limit"`
}

func tracer() trace.Tracer { return otel.Tracer("services/MessageService") }

// Send persists the user's message, generates a reply and persists it.
func (s *MessageService) Send(ctx context.Context, userID string, in SendInput) (*SendResult, error) {
	ctx, span := tracer().Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", in.ConversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	if prev, err := s.replay(ctx, userID, in); err != nil || prev != nil {
		return prev, err
	}

	conv, err := s.conversation(ctx, in.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	ch := conv.Character

	history, err := s.history(ctx, conv.ID, time.Time{})
	if err != nil {
		return nil, err
	}

	userMsg, err := repo.CreateMessage(ctx, s.DB, conv.ID, domain.RoleUser, text, domain.MessageMetadata{CharacterID: ch.ID})
	if err != nil {
		return nil, err
	}

	resp := s.generate(ctx, ai.Request{
		Character: ch,
		Message:   text,
		History:   history,
		Provider:  in.Provider,
		Model:     in.Model,
	})
	span.SetAttributes(attribute.String("ai.provider", resp.Provider))

	// The reply is stored even if the client has gone away.
	persistCtx := context.WithoutCancel(ctx)
	asstMsg, err := repo.CreateMessage(persistCtx, s.DB, conv.ID, domain.RoleAssistant, resp.Content, domain.MessageMetadata{
		Provider:    resp.Provider,
		Model:       resp.Model,
		CharacterID: ch.ID,
		Error:       resp.Error,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist assistant message")
		return nil, err
	}
	if err := repo.TouchConversation(persistCtx, s.DB, conv.ID); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" && in.IdempotencyScope != "" {
		_, ierr := repo.CreateIdempotency(persistCtx, s.DB, userID, in.IdempotencyScope, in.IdempotencyKey,
			userMsg.ID, asstMsg.ID, 201, s.IdempotencyTTL)
		if ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			log.Ctx(ctx).Warn().Err(ierr).Msg("store idempotency record")
		}
	}

	return &SendResult{UserMessage: userMsg, AssistantMessage: asstMsg, Character: refOf(ch)}, nil
}

// HasReplay reports whether a send with this key already completed. It
// matches middleware.IdempotencyLookup.
func (s *MessageService) HasReplay(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return rec != nil, err
}

// replay returns the recorded exchange for an idempotent retry, or nil.
// A key reused for another conversation is a conflict. A record whose
// messages were deleted is dropped so the retry runs as a fresh send.
func (s *MessageService) replay(ctx context.Context, userID string, in SendInput) (*SendResult, error) {
	if in.IdempotencyKey == "" || in.IdempotencyScope == "" {
		return nil, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, in.IdempotencyScope, in.IdempotencyKey, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	userMsg, err := repo.GetOwnedMessage(ctx, s.DB, rec.RequestMessageID, userID)
	if err != nil {
		return nil, s.dropStale(ctx, rec, err)
	}
	if userMsg.ConversationID != in.ConversationID {
		return nil, ErrIdempotencyConflict
	}
	asstMsg, err := repo.GetOwnedMessage(ctx, s.DB, rec.ResponseMessageID, userID)
	if err != nil {
		return nil, s.dropStale(ctx, rec, err)
	}
	conv, err := s.conversation(ctx, userMsg.ConversationID, userID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, s.dropStale(ctx, rec, repo.ErrNotFound)
		}
		return nil, err
	}
	return &SendResult{UserMessage: userMsg, AssistantMessage: asstMsg, Character: refOf(conv.Character), Replayed: true}, nil
}

// dropStale deletes rec when lookupErr says its messages are gone and
// returns any other lookup error unchanged.
func (s *MessageService) dropStale(ctx context.Context, rec *domain.Idempotency, lookupErr error) error {
	if !errors.Is(lookupErr, repo.ErrNotFound) {
		return lookupErr
	}
	log.Ctx(ctx).Warn().
		Str("idempotency_key", rec.Key).
		Str("message_id", rec.RequestMessageID).
		Msg("stored exchange is gone; dropping idempotency record")
	return repo.DeleteIdempotency(ctx, s.DB, rec.ID)
}

// Regenerate replaces the newest assistant reply with a freshly generated
// one. The two newest messages must be a user prompt followed by the reply.
func (s *MessageService) Regenerate(ctx context.Context, userID string, in RegenerateInput) (*RegenerateResult, error) {
	ctx, span := tracer().Start(ctx, "Regenerate",
		trace.WithAttributes(
			attribute.String("conversation.id", in.ConversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	conv, err := s.conversation(ctx, in.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	ch := conv.Character

	last, err := repo.RecentMessages(ctx, s.DB, conv.ID, time.Time{}, 2)
	if err != nil {
		return nil, err
	}
	if len(last) < 2 || last[0].Role != domain.RoleAssistant || last[1].Role != domain.RoleUser {
		return nil, ErrCannotRegenerate
	}
	target, prompt := last[0], last[1]

	history, err := s.history(ctx, conv.ID, prompt.CreatedAt)
	if err != nil {
		return nil, err
	}

	resp := s.generate(ctx, ai.Request{
		Character: ch,
		Message:   prompt.Content,
		History:   history,
		Provider:  in.Provider,
		Model:     in.Model,
	})
	span.SetAttributes(attribute.String("ai.provider", resp.Provider))

	prev := target.Meta()
	meta := domain.MessageMetadata{
		Provider:    resp.Provider,
		Model:       resp.Model,
		CharacterID: ch.ID,
		Regenerated: true,
		Revision:    prev.Revision + 1,
		Error:       resp.Error,
	}
	persistCtx := context.WithoutCancel(ctx)
	err = s.DB.WithContext(persistCtx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ReviseMessage(persistCtx, tx, &target, resp.Content, meta); err != nil {
			return err
		}
		return repo.TouchConversation(persistCtx, tx, conv.ID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revise message")
		return nil, err
	}
	return &RegenerateResult{AssistantMessage: &target, Character: refOf(ch)}, nil
}

// Messages returns up to limit messages created before `before` (zero for
// the newest), oldest first. HasMore is exact.
func (s *MessageService) Messages(ctx context.Context, userID, conversationID string, limit int, before time.Time) (*MessagePage, error) {
	ctx, span := tracer().Start(ctx, "Messages",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}

	rows, err := repo.RecentMessages(ctx, s.DB, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	repo.ReverseMessages(rows)
	if rows == nil {
		rows = []domain.Message{}
	}
	return &MessagePage{Messages: rows, HasMore: hasMore, Limit: limit}, nil
}

// DeleteMessage removes one message from a conversation the user owns.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	m, err := repo.GetOwnedMessage(ctx, s.DB, messageID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteMessage(ctx, tx, m.ID); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, m.ConversationID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMessageNotFound
	}
	return err
}

// Revisions lists the superseded versions of a message the user owns.
func (s *MessageService) Revisions(ctx context.Context, userID, messageID string) ([]domain.MessageRevision, error) {
	if _, err := repo.GetOwnedMessage(ctx, s.DB, messageID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	revs, err := repo.ListRevisions(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	if revs == nil {
		revs = []domain.MessageRevision{}
	}
	return revs, nil
}

func (s *MessageService) conversation(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	conv, err := repo.GetConversationWithCharacter(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.Character == nil {
		return nil, ErrCharacterNotFound
	}
	return conv, nil
}

// history returns up to HistoryLimit messages before `before`, oldest first.
func (s *MessageService) history(ctx context.Context, conversationID string, before time.Time) ([]domain.Message, error) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = 20
	}
	msgs, err := repo.RecentMessages(ctx, s.DB, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	repo.ReverseMessages(msgs)
	return msgs, nil
}

// generate calls the reply generator, substituting the apology for errors
// and panics escaping it.
func (s *MessageService) generate(ctx context.Context, req ai.Request) (resp *ai.Response) {
	lg := log.Ctx(ctx)
	if lg.GetLevel() == zerolog.Disabled {
		lg = &log.Logger
	}
	apology := func(cause string) *ai.Response {
		return &ai.Response{
			Content:   ApologyContent,
			Provider:  ai.ProviderFallback,
			Model:     "none",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     cause,
		}
	}
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Str("character_id", req.Character.ID).Msg("reply generation panicked")
			resp = apology(fmt.Sprint(r))
		}
	}()

	if s.AI == nil {
		return apology("no reply generator configured")
	}
	out, err := s.AI.Generate(ctx, req)
	if err != nil || out == nil {
		if err == nil {
			err = errors.New("empty response")
		}
		lg.Error().Err(err).Str("character_id", req.Character.ID).Msg("reply generation failed")
		return apology(err.Error())
	}
	return out
}
