// Package services – ConversationService
//
// This file implements ConversationService, which manages conversation
// threads between a user and a character: creation (bumping the character's
// chat counter), listing enriched with the latest message, renaming,
// clearing, deletion and per-conversation statistics. Every operation is
// scoped to the owning user.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
	"github.com/tbourn/persona-chat-backend/internal/utils"
)

// ConversationService provides conversation-level operations.
type ConversationService struct {
	DB *gorm.DB

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen  int
	DefaultLimit int
	MaxLimit     int
}

// NewConversationService constructs a ConversationService with defaults.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{
		DB:           db,
		TitleMaxLen:  100,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// ConversationPage is one page of a user's conversations.
type ConversationPage struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    utils.Pagination      `json:"pagination"`
}

// ConversationStats summarizes the messages of one conversation.
type ConversationStats struct {
	ConversationID    string     `json:"conversation_id"`
	TotalMessages     int        `json:"total_messages"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	TotalWords        int        `json:"total_words"`
	UserWords         int        `json:"user_words"`
	AssistantWords    int        `json:"assistant_words"`
	FirstMessageAt    *time.Time `json:"first_message_at"`
	LastMessageAt     *time.Time `json:"last_message_at"`
}

// Create starts a conversation with a visible character.
func (s *ConversationService) Create(ctx context.Context, userID, characterID, title string) (*domain.Conversation, error) {
	ch, err := repo.GetCharacter(ctx, s.DB, characterID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	if !ch.IsPublic && ch.CreatorID != userID {
		return nil, ErrCharacterNotFound
	}

	title = s.clip(normalizeTitle(title))
	if title == "" {
		title = s.clip("Chat with " + ch.Name)
	}

	var conv *domain.Conversation
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.CreateConversation(ctx, tx, userID, ch.ID, title)
		if err != nil {
			return err
		}
		conv = c
		return repo.IncrementChatCount(ctx, tx, ch.ID)
	})
	if err != nil {
		return nil, err
	}
	ch.ChatCount++
	conv.Character = ch
	return conv, nil
}

// List returns a page of the user's conversations, most recently active
// first, each carrying its latest message.
func (s *ConversationService) List(ctx context.Context, userID string, page, limit int) (*ConversationPage, error) {
	page, limit = utils.ClampPage(page, limit, s.DefaultLimit, s.MaxLimit)

	total, err := repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := &ConversationPage{Conversations: []domain.Conversation{}, Pagination: utils.NewPagination(page, limit, total)}
	if total == 0 {
		return out, nil
	}

	items, err := repo.ListConversationsPage(ctx, s.DB, userID, utils.Offset(page, limit), limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	latest, err := repo.LatestMessages(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if m, ok := latest[items[i].ID]; ok {
			items[i].LastMessage = &m
		}
	}
	out.Conversations = items
	return out, nil
}

// Version returns a weak validator for the user's conversation list. It
// changes whenever a conversation is created, deleted or touched.
func (s *ConversationService) Version(ctx context.Context, userID string) (string, error) {
	count, maxUpdated, err := repo.ConversationsStats(ctx, s.DB, userID)
	if err != nil {
		return "", err
	}
	var ts int64
	if maxUpdated != nil {
		ts = maxUpdated.UTC().UnixNano()
	}
	return fmt.Sprintf(`W/"convs-%s-%d-%d"`, userID, count, ts), nil
}

// Get returns a conversation with its character and all messages.
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	c, err := repo.GetConversationDetail(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	return c, nil
}

// UpdateTitle renames a conversation.
func (s *ConversationService) UpdateTitle(ctx context.Context, id, userID, title string) (*domain.Conversation, error) {
	title = s.clip(normalizeTitle(title))
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := repo.UpdateConversationTitle(ctx, s.DB, id, userID, title); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	c, err := repo.GetConversationWithCharacter(ctx, s.DB, id, userID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, id, userID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteConversation(ctx, tx, id, userID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Clear deletes every message but keeps the conversation, bumping its
// updated_at.
func (s *ConversationService) Clear(ctx context.Context, id, userID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetConversation(ctx, tx, id, userID); err != nil {
			return err
		}
		if err := repo.DeleteConversationMessages(ctx, tx, id); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, id)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Stats counts messages and words per role.
func (s *ConversationService) Stats(ctx context.Context, id, userID string) (*ConversationStats, error) {
	if _, err := repo.GetConversation(ctx, s.DB, id, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	msgs, err := repo.ListAllMessages(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	st := &ConversationStats{ConversationID: id, TotalMessages: len(msgs)}
	for _, m := range msgs {
		words := len(strings.Fields(m.Content))
		st.TotalWords += words
		switch m.Role {
		case domain.RoleUser:
			st.UserMessages++
			st.UserWords += words
		case domain.RoleAssistant:
			st.AssistantMessages++
			st.AssistantWords += words
		}
	}
	if len(msgs) > 0 {
		first, last := msgs[0].CreatedAt, msgs[len(msgs)-1].CreatedAt
		st.FirstMessageAt, st.LastMessageAt = &first, &last
	}
	return st, nil
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
