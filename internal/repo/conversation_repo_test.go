package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

func TestConversation_CRUD_EnforcesOwnership(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	alice := mustUser(t, db, "alice")
	bob := mustUser(t, db, "bob")
	ch := mustCharacter(t, db, alice.ID, nil)

	conv, err := CreateConversation(ctx, db, alice.ID, ch.ID, "Chat with Sherlock")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := GetConversation(ctx, db, conv.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign owner should look missing, got %v", err)
	}
	if err := UpdateConversationTitle(ctx, db, conv.ID, bob.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign rename should be ErrNotFound, got %v", err)
	}
	if err := UpdateConversationTitle(ctx, db, conv.ID, alice.ID, "Renamed"); err != nil {
		t.Fatalf("UpdateConversationTitle: %v", err)
	}
	got, err := GetConversationWithCharacter(ctx, db, conv.ID, alice.ID)
	if err != nil || got.Title != "Renamed" || got.Character == nil || got.Character.Name != "Sherlock" {
		t.Fatalf("reload: %+v err=%v", got, err)
	}
}

func TestListConversationsPage_OrdersByActivity(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	ch := mustCharacter(t, db, u.ID, nil)

	first, _ := CreateConversation(ctx, db, u.ID, ch.ID, "first")
	second, _ := CreateConversation(ctx, db, u.ID, ch.ID, "second")
	// Make "first" the most recently active.
	db.Model(&domain.Conversation{}).Where("id = ?", second.ID).UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour))
	if err := TouchConversation(ctx, db, first.ID); err != nil {
		t.Fatalf("TouchConversation: %v", err)
	}

	page, err := ListConversationsPage(ctx, db, u.ID, 0, 10)
	if err != nil || len(page) != 2 {
		t.Fatalf("list: %d err=%v", len(page), err)
	}
	if page[0].ID != first.ID || page[0].Character == nil {
		t.Fatalf("expected touched conversation first with character, got %+v", page[0])
	}
	if n, _ := CountConversations(ctx, db, u.ID); n != 2 {
		t.Fatalf("CountConversations=%d", n)
	}
}

func TestGetConversationDetail_SortsMessages(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	ch := mustCharacter(t, db, u.ID, nil)
	conv, _ := CreateConversation(ctx, db, u.ID, ch.ID, "t")

	base := time.Now().UTC()
	mustMessageAt(t, db, conv.ID, domain.RoleAssistant, "second", base.Add(time.Second))
	mustMessageAt(t, db, conv.ID, domain.RoleUser, "first", base)

	got, err := GetConversationDetail(ctx, db, conv.ID, u.ID)
	if err != nil {
		t.Fatalf("GetConversationDetail: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "first" {
		t.Fatalf("messages not chronological: %+v", got.Messages)
	}
}

func TestDeleteConversation_RemovesMessagesAndRevisions(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	ch := mustCharacter(t, db, u.ID, nil)
	conv, _ := CreateConversation(ctx, db, u.ID, ch.ID, "t")
	m, _ := CreateMessage(ctx, db, conv.ID, domain.RoleAssistant, "v1", domain.MessageMetadata{})
	if err := ReviseMessage(ctx, db, m, "v2", domain.MessageMetadata{Regenerated: true}); err != nil {
		t.Fatalf("ReviseMessage: %v", err)
	}

	if err := DeleteConversation(ctx, db, conv.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete should be ErrNotFound, got %v", err)
	}
	if err := DeleteConversation(ctx, db, conv.ID, u.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	for _, model := range []any{&domain.Conversation{}, &domain.Message{}, &domain.MessageRevision{}} {
		var n int64
		db.Model(model).Count(&n)
		if n != 0 {
			t.Fatalf("%T rows left: %d", model, n)
		}
	}
}
