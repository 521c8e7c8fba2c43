package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// Character sort keys accepted by ListCharacters.
const (
	SortPopular = "popular"
	SortNewest  = "newest"
	SortRating  = "rating"
	SortName    = "name"
)

// CharacterFilter narrows ListCharacters. ViewerID, when set, also admits the
// viewer's own private characters.
type CharacterFilter struct {
	Category  string
	Search    string
	Sort      string
	CreatorID string
	ViewerID  string
}

// CategoryCount is one row of the categories aggregate.
type CategoryCount struct {
	Category string
	Count    int64
}

func withCreator(db *gorm.DB) *gorm.DB {
	return db.Preload("Creator", func(q *gorm.DB) *gorm.DB {
		return q.Select("id", "username", "full_name", "avatar_url", "created_at", "updated_at")
	})
}

func visibleTo(q *gorm.DB, viewerID string) *gorm.DB {
	if viewerID == "" {
		return q.Where("is_public = ?", true)
	}
	return q.Where("(is_public = ? OR creator_id = ?)", true, viewerID)
}

func orderFor(sort string) string {
	switch sort {
	case SortNewest:
		return "created_at DESC"
	case SortRating:
		return "rating DESC, like_count DESC"
	case SortName:
		return "name ASC"
	default:
		return "chat_count DESC, like_count DESC"
	}
}

func characterQuery(ctx context.Context, db *gorm.DB, f CharacterFilter) *gorm.DB {
	q := visibleTo(db.WithContext(ctx).Model(&domain.Character{}), f.ViewerID)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.CreatorID != "" {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(CAST(tags AS TEXT)) LIKE ?)", like, like, like)
	}
	return q
}

// CountCharacters returns the total matching f.
func CountCharacters(ctx context.Context, db *gorm.DB, f CharacterFilter) (int64, error) {
	var total int64
	err := characterQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListCharacters returns one page of characters matching f, with the creator
// summary preloaded. Ties are broken by id for stable paging.
func ListCharacters(ctx context.Context, db *gorm.DB, f CharacterFilter, offset, limit int) ([]domain.Character, error) {
	var out []domain.Character
	err := withCreator(characterQuery(ctx, db, f)).
		Order(orderFor(f.Sort) + ", id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListFeatured returns public featured characters, most liked first.
func ListFeatured(ctx context.Context, db *gorm.DB, limit int) ([]domain.Character, error) {
	var out []domain.Character
	err := withCreator(db.WithContext(ctx)).
		Where("is_public = ? AND is_featured = ?", true, true).
		Order("like_count DESC, chat_count DESC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCategories aggregates the categories used by public characters.
func ListCategories(ctx context.Context, db *gorm.DB) ([]CategoryCount, error) {
	var out []CategoryCount
	err := db.WithContext(ctx).Model(&domain.Character{}).
		Select("category, COUNT(*) AS count").
		Where("is_public = ? AND category <> ''", true).
		Group("category").
		Order("count DESC, category ASC").
		Scan(&out).Error
	return out, err
}

// GetCharacter fetches a character by ID with its creator summary.
func GetCharacter(ctx context.Context, db *gorm.DB, id string) (*domain.Character, error) {
	var c domain.Character
	if err := withCreator(db.WithContext(ctx)).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCharacter inserts c, assigning an ID and timestamps.
func CreateCharacter(ctx context.Context, db *gorm.DB, c *domain.Character) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	// Select("*") writes zero-value columns too. IsPublic has no tag default;
	// the service decides it.
	return db.WithContext(ctx).Omit(clause.Associations).Select("*").Create(c).Error
}

// UpdateCharacter applies a column map to the character row.
func UpdateCharacter(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Character{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCharacter removes a character and everything hanging off it:
// likes, conversations, their messages and revisions. Run it inside a
// transaction.
func DeleteCharacter(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	convIDs := tx.Model(&domain.Conversation{}).Select("id").Where("character_id = ?", id)
	msgIDs := tx.Model(&domain.Message{}).Select("id").Where("conversation_id IN (?)", convIDs)

	if err := tx.Where("message_id IN (?)", msgIDs).Delete(&domain.MessageRevision{}).Error; err != nil {
		return err
	}
	if err := tx.Where("conversation_id IN (?)", convIDs).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("character_id = ?", id).Delete(&domain.Conversation{}).Error; err != nil {
		return err
	}
	if err := tx.Where("character_id = ?", id).Delete(&domain.CharacterLike{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Character{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViewCount bumps view_count atomically.
func IncrementViewCount(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.Character{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}

// IncrementChatCount bumps chat_count atomically.
func IncrementChatCount(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.Character{}).
		Where("id = ?", id).
		UpdateColumn("chat_count", gorm.Expr("chat_count + ?", 1)).Error
}

// FindLike returns the like row for (characterID, userID) or ErrNotFound.
func FindLike(ctx context.Context, db *gorm.DB, characterID, userID string) (*domain.CharacterLike, error) {
	var l domain.CharacterLike
	err := db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", characterID, userID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLike inserts a like row. The unique index rejects duplicates.
func CreateLike(ctx context.Context, db *gorm.DB, characterID, userID string) error {
	l := &domain.CharacterLike{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
}

// DeleteLike removes the like row for (characterID, userID).
func DeleteLike(ctx context.Context, db *gorm.DB, characterID, userID string) error {
	return db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", characterID, userID).
		Delete(&domain.CharacterLike{}).Error
}

// AdjustLikeCount adds delta to like_count atomically, never going below zero.
func AdjustLikeCount(ctx context.Context, db *gorm.DB, id string, delta int) error {
	expr := gorm.Expr("like_count + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN like_count + ? < 0 THEN 0 ELSE like_count + ? END", delta, delta)
	}
	return db.WithContext(ctx).Model(&domain.Character{}).
		Where("id = ?", id).
		UpdateColumn("like_count", expr).Error
}

// LikeCount reads the current like_count.
func LikeCount(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Character{}).
		Select("like_count").
		Where("id = ?", id).
		Scan(&n).Error
	return n, err
}
