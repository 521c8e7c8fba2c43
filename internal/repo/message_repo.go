package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, role, content string, meta domain.MessageMetadata) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       datatypes.NewJSONType(meta),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOwnedMessage fetches a message only if its conversation belongs to userID.
func GetOwnedMessage(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.id = ? AND conversations.user_id = ?", id, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMessages returns up to limit messages created strictly before
// `before` (zero means no bound), newest first. Callers reverse for
// chronological order.
func RecentMessages(ctx context.Context, db *gorm.DB, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// LatestMessages returns the most recent message of each conversation in ids,
// keyed by conversation ID. Conversations without messages are absent.
func LatestMessages(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Message, error) {
	out := make(map[string]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	latest := db.Model(&domain.Message{}).
		Select("conversation_id, MAX(created_at) AS created_at").
		Where("conversation_id IN ?", ids).
		Group("conversation_id")

	var rows []domain.Message
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS latest ON latest.conversation_id = m.conversation_id AND latest.created_at = m.created_at", latest).
		Order("m.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if _, seen := out[m.ConversationID]; !seen {
			out[m.ConversationID] = m
		}
	}
	return out, nil
}

// ReverseMessages reverses ms in place.
func ReverseMessages(ms []domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// ListAllMessages returns every message of a conversation, oldest first.
func ListAllMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ReviseMessage snapshots the current content of m into message_revisions and
// overwrites it with content/meta. Run it inside a transaction.
func ReviseMessage(ctx context.Context, tx *gorm.DB, m *domain.Message, content string, meta domain.MessageMetadata) error {
	tx = tx.WithContext(ctx)
	now := time.Now().UTC()
	rev := &domain.MessageRevision{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: now,
	}
	if err := tx.Create(rev).Error; err != nil {
		return err
	}
	next := datatypes.NewJSONType(meta)
	res := tx.Model(&domain.Message{}).Where("id = ?", m.ID).Updates(map[string]any{
		"content":    content,
		"metadata":   next,
		"updated_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	m.Content, m.Metadata, m.UpdatedAt = content, next, now
	return nil
}

// ListRevisions returns the superseded versions of a message, oldest first.
func ListRevisions(ctx context.Context, db *gorm.DB, messageID string) ([]domain.MessageRevision, error) {
	var out []domain.MessageRevision
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteMessage removes one message and its revisions.
func DeleteMessage(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	if err := tx.Where("message_id = ?", id).Delete(&domain.MessageRevision{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversationMessages removes all messages (and revisions) of a
// conversation.
func DeleteConversationMessages(ctx context.Context, tx *gorm.DB, conversationID string) error {
	tx = tx.WithContext(ctx)
	ids := tx.Model(&domain.Message{}).Select("id").Where("conversation_id = ?", conversationID)
	if err := tx.Where("message_id IN (?)", ids).Delete(&domain.MessageRevision{}).Error; err != nil {
		return err
	}
	return tx.Where("conversation_id = ?", conversationID).Delete(&domain.Message{}).Error
}
