package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// CreateUser inserts a user row. Email is stored lower-cased. Unique
// violations are returned raw; see IsUniqueViolation.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	return db.WithContext(ctx).Create(u).Error
}

// GetUser fetches a user by ID or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail looks a user up case-insensitively.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameTaken reports whether another user already holds username.
func UsernameTaken(ctx context.Context, db *gorm.DB, username, exceptID string) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", username)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

// UpdateUser applies a column map to the user row. Returns ErrNotFound when
// nothing matched.
func UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreatePasswordReset stores a hashed one-time token for userID.
func CreatePasswordReset(ctx context.Context, db *gorm.DB, userID, tokenHash string, ttl time.Duration) (*domain.PasswordReset, error) {
	now := time.Now().UTC()
	pr := &domain.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(pr).Error; err != nil {
		return nil, err
	}
	return pr, nil
}

// ConsumePasswordReset marks an unused, unexpired token as used and returns
// it. Missing, used and expired tokens all yield ErrNotFound.
func ConsumePasswordReset(ctx context.Context, db *gorm.DB, tokenHash string, now time.Time) (*domain.PasswordReset, error) {
	var pr domain.PasswordReset
	err := db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		First(&pr).Error
	if err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).Model(&domain.PasswordReset{}).
		Where("id = ? AND used_at IS NULL", pr.ID).
		Update("used_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	pr.UsedAt = &now
	return &pr, nil
}
