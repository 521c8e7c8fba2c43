package repo

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

var dbSeq atomic.Int64

// newRepoDB opens a private in-memory database with the full schema.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func mustUser(t *testing.T, db *gorm.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Email: username + "@example.com", Username: username}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustCharacter(t *testing.T, db *gorm.DB, creatorID string, mutate func(*domain.Character)) *domain.Character {
	t.Helper()
	c := &domain.Character{
		Name:        "Sherlock",
		Description: "Consulting detective",
		Personality: "mysterious",
		Traits:      datatypes.JSONSlice[string]{},
		Tags:        datatypes.JSONSlice[string]{},
		CreatorID:   creatorID,
		IsPublic:    true,
	}
	if mutate != nil {
		mutate(c)
	}
	if err := CreateCharacter(context.Background(), db, c); err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	return c
}

// mustMessageAt inserts a message with an explicit timestamp.
func mustMessageAt(t *testing.T, db *gorm.DB, convID, role, content string, at time.Time) *domain.Message {
	t.Helper()
	m, err := CreateMessage(context.Background(), db, convID, role, content, domain.MessageMetadata{})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := db.Model(&domain.Message{}).Where("id = ?", m.ID).UpdateColumn("created_at", at).Error; err != nil {
		t.Fatalf("set created_at: %v", err)
	}
	m.CreatedAt = at
	return m
}

// mustConversation creates a user, a character and a conversation between them.
func mustConversation(t *testing.T, db *gorm.DB, username string) *domain.Conversation {
	t.Helper()
	u := mustUser(t, db, username)
	ch := mustCharacter(t, db, u.ID, nil)
	conv, err := CreateConversation(context.Background(), db, u.ID, ch.ID, "Chat with "+ch.Name)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}
