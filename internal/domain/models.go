// Package domain defines the persistence models for users, characters,
// conversations and messages. These types are mapped with GORM and form the
// core data layer of the persona chat backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is the profile row of an account. Accounts are never hard-deleted.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email / Username: unique; Username is what other users see.
//   - PasswordHash: bcrypt hash, never serialized.
//   - IsAdmin: reserved for moderation tooling.
type User struct {
	ID           string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email,omitempty"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Username     string    `json:"username"             gorm:"type:varchar(50);not null;uniqueIndex:ux_users_username"`
	FullName     string    `json:"full_name"            gorm:"type:varchar(100)"`
	Bio          string    `json:"bio,omitempty"        gorm:"type:text"`
	AvatarURL    string    `json:"avatar_url"           gorm:"type:varchar(512)"`
	Website      string    `json:"website,omitempty"    gorm:"type:varchar(512)"`
	Location     string    `json:"location,omitempty"   gorm:"type:varchar(100)"`
	IsAdmin      bool      `json:"is_admin,omitempty"   gorm:"not null;default:false"`
	PasswordHash string    `json:"-"                    gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Character is an AI persona definition. Only the creator may mutate it.
//
// Counters (chat, like, view) are only ever changed through atomic SQL
// expressions, never read-modify-write.
type Character struct {
	ID            string                      `json:"id"             gorm:"type:char(36);primaryKey"`
	Name          string                      `json:"name"           gorm:"type:varchar(100);not null;index"`
	Description   string                      `json:"description"    gorm:"type:text;not null"`
	Personality   string                      `json:"personality"    gorm:"type:text"`
	Background    string                      `json:"background"     gorm:"type:text"`
	SpeakingStyle string                      `json:"speaking_style" gorm:"type:text"`
	Traits        datatypes.JSONSlice[string] `json:"traits"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	Category      string                      `json:"category"       gorm:"type:varchar(50);index"`
	AvatarURL     string                      `json:"avatar_url"     gorm:"type:varchar(512)"`
	IsPublic      bool                        `json:"is_public"      gorm:"not null;index:idx_char_public_featured,priority:1"`
	IsFeatured    bool                        `json:"is_featured"    gorm:"not null;default:false;index:idx_char_public_featured,priority:2"`
	CreatorID     string                      `json:"creator_id"     gorm:"type:char(36);not null;index"`
	AIProvider    string                      `json:"ai_provider"    gorm:"type:varchar(32)"`
	AIModel       string                      `json:"ai_model"       gorm:"type:varchar(100)"`
	ChatCount     int64                       `json:"chat_count"     gorm:"not null;default:0"`
	LikeCount     int64                       `json:"like_count"     gorm:"not null;default:0"`
	ViewCount     int64                       `json:"view_count"     gorm:"not null;default:0"`
	Rating        float64                     `json:"rating"         gorm:"not null;default:0"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`

	// Creator carries a public summary of the owner (no email).
	Creator *User `json:"creator,omitempty" gorm:"foreignKey:CreatorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Character.
func (Character) TableName() string { return "characters" }

// CharacterLike records that a user liked a character; at most one per pair.
type CharacterLike struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	CharacterID string    `json:"character_id" gorm:"type:char(36);not null;uniqueIndex:ux_like_character_user,priority:1"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;index;uniqueIndex:ux_like_character_user,priority:2"`
	CreatedAt   time.Time `json:"created_at"`

	Character Character `json:"-" gorm:"foreignKey:CharacterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CharacterLike.
func (CharacterLike) TableName() string { return "character_likes" }

// Conversation is a chat thread between one user and one character.
type Conversation struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;index:idx_user_convs,priority:1"`
	CharacterID string    `json:"character_id" gorm:"type:char(36);not null;index"`
	Title       string    `json:"title"        gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   gorm:"index:idx_user_convs,priority:2"`

	Character   *Character `json:"character,omitempty"    gorm:"foreignKey:CharacterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Messages    []Message  `json:"messages,omitempty"     gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	LastMessage *Message   `json:"last_message,omitempty" gorm:"-"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// MessageMetadata is stored as JSON next to each message.
type MessageMetadata struct {
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	CharacterID string `json:"character_id,omitempty"`
	Regenerated bool   `json:"regenerated,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Message is a single utterance inside a conversation, ordered by CreatedAt.
type Message struct {
	ID             string                              `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string                              `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string                              `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string                              `json:"content"         gorm:"type:text;not null"`
	Metadata       datatypes.JSONType[MessageMetadata] `json:"metadata"`
	CreatedAt      time.Time                           `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time                           `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Meta returns the decoded metadata.
func (m Message) Meta() MessageMetadata { return m.Metadata.Data() }

// MessageRevision keeps a superseded assistant reply after a regenerate.
type MessageRevision struct {
	ID        string                              `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string                              `json:"message_id" gorm:"type:char(36);not null;index"`
	Content   string                              `json:"content"    gorm:"type:text;not null"`
	Metadata  datatypes.JSONType[MessageMetadata] `json:"metadata"`
	CreatedAt time.Time                           `json:"created_at"`
}

// TableName returns the database table name for MessageRevision.
func (MessageRevision) TableName() string { return "message_revisions" }

// PasswordReset is a one-time reset token; only its sha256 is stored.
type PasswordReset struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	TokenHash string    `gorm:"type:char(64);not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TableName returns the database table name for PasswordReset.
func (PasswordReset) TableName() string { return "password_resets" }
