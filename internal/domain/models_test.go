package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Single connection so the PRAGMA applies to every statement.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&User{}, &Character{}, &CharacterLike{}, &Conversation{},
		&Message{}, &MessageRevision{}, &PasswordReset{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():            "users",
		(Character{}).TableName():       "characters",
		(CharacterLike{}).TableName():   "character_likes",
		(Conversation{}).TableName():    "conversations",
		(Message{}).TableName():         "messages",
		(MessageRevision{}).TableName(): "message_revisions",
		(PasswordReset{}).TableName():   "password_resets",
		(Idempotency{}).TableName():     "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	checks := []struct {
		model any
		index string
	}{
		{&User{}, "ux_users_email"},
		{&User{}, "ux_users_username"},
		{&CharacterLike{}, "ux_like_character_user"},
		{&Conversation{}, "idx_user_convs"},
		{&Message{}, "idx_conv_msgs"},
		{&Idempotency{}, "ux_user_scope_key"},
	}
	for _, c := range checks {
		if !m.HasIndex(c.model, c.index) {
			t.Fatalf("expected index %s on %T", c.index, c.model)
		}
	}
}

func seedGraph(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Now().UTC()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(db.Create(&User{ID: "u1", Email: "a@x.io", Username: "alice", CreatedAt: now}).Error)
	must(db.Create(&Character{
		ID: "ch1", Name: "Sherlock", Description: "detective", CreatorID: "u1",
		Traits: datatypes.JSONSlice[string]{"observant", "aloof"}, Tags: datatypes.JSONSlice[string]{},
		IsPublic: true,
	}).Error)
	must(db.Create(&Conversation{ID: "c1", UserID: "u1", CharacterID: "ch1", Title: "Chat"}).Error)
	must(db.Create(&Message{
		ID: "m1", ConversationID: "c1", Role: RoleAssistant, Content: "Elementary.",
		Metadata:  datatypes.NewJSONType(MessageMetadata{Provider: "openai", Model: "gpt-3.5-turbo", CharacterID: "ch1"}),
		CreatedAt: now,
	}).Error)
}

func TestJSONColumns_RoundTrip(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	var ch Character
	if err := db.First(&ch, "id = ?", "ch1").Error; err != nil {
		t.Fatalf("load character: %v", err)
	}
	if len(ch.Traits) != 2 || ch.Traits[0] != "observant" || len(ch.Tags) != 0 {
		t.Fatalf("unexpected traits/tags: %v / %v", ch.Traits, ch.Tags)
	}

	var msg Message
	if err := db.First(&msg, "id = ?", "m1").Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if meta := msg.Meta(); meta.Provider != "openai" || meta.CharacterID != "ch1" || meta.Regenerated {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestRoleCheckConstraint(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	err := db.Create(&Message{ID: "m2", ConversationID: "c1", Role: "system", Content: "x"}).Error
	if err == nil {
		t.Fatalf("expected CHECK violation for role=system")
	}
}

func TestCascade_ConversationDeletesMessages(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	if err := db.Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete, got %d", cnt)
	}
}
