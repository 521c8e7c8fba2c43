package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
)

func setMessageTime(t *testing.T, db *gorm.DB, id string, at time.Time) {
	t.Helper()
	if err := db.Model(&domain.Message{}).Where("id = ?", id).UpdateColumn("created_at", at).Error; err != nil {
		t.Fatalf("set created_at: %v", err)
	}
}

func TestConversationService_Create_DefaultTitleAndChatCount(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()

	conv, err := s.Create(ctx, u.ID, ch.ID, "   ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.Title != "Chat with Sherlock" {
		t.Fatalf("title = %q", conv.Title)
	}
	if conv.Character == nil || conv.Character.ChatCount != 1 {
		t.Fatalf("character not attached or count not bumped: %+v", conv.Character)
	}
	got, _ := repo.GetCharacter(ctx, db, ch.ID)
	if got.ChatCount != 1 {
		t.Fatalf("chat_count = %d", got.ChatCount)
	}

	named, err := s.Create(ctx, u.ID, ch.ID, "  Baker   Street  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if named.Title != "Baker Street" {
		t.Fatalf("title = %q", named.Title)
	}

	if _, err := s.Create(ctx, u.ID, "missing", ""); !errors.Is(err, ErrCharacterNotFound) {
		t.Fatalf("missing character: %v", err)
	}
}

func TestConversationService_Create_PrivateCharacterOfOtherUser(t *testing.T) {
	db := newSvcDB(t)
	owner := seedUser(t, db, "owner")
	other := seedUser(t, db, "other")
	ch := seedCharacter(t, db, owner.ID, "Hidden", func(c *domain.Character) { c.IsPublic = false })

	if _, err := NewConversationService(db).Create(context.Background(), other.ID, ch.ID, ""); !errors.Is(err, ErrCharacterNotFound) {
		t.Fatalf("want ErrCharacterNotFound, got %v", err)
	}
}

func TestConversationService_List_AttachesLatestMessage(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()

	older, _ := s.Create(ctx, u.ID, ch.ID, "older")
	newer, _ := s.Create(ctx, u.ID, ch.ID, "newer")

	base := time.Now().UTC().Add(-time.Hour)
	m1, _ := repo.CreateMessage(ctx, db, older.ID, domain.RoleUser, "first", domain.MessageMetadata{})
	m2, _ := repo.CreateMessage(ctx, db, older.ID, domain.RoleAssistant, "second", domain.MessageMetadata{})
	setMessageTime(t, db, m1.ID, base)
	setMessageTime(t, db, m2.ID, base.Add(time.Minute))
	if err := repo.TouchConversation(ctx, db, older.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	page, err := s.List(ctx, u.ID, 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Pagination.Total != 2 || len(page.Conversations) != 2 {
		t.Fatalf("page = %+v", page.Pagination)
	}
	if page.Conversations[0].ID != older.ID {
		t.Fatalf("most recently touched conversation should be first")
	}
	if lm := page.Conversations[0].LastMessage; lm == nil || lm.Content != "second" {
		t.Fatalf("last message = %+v", lm)
	}
	if page.Conversations[1].ID != newer.ID || page.Conversations[1].LastMessage != nil {
		t.Fatalf("empty conversation should have no last message")
	}
	if page.Conversations[0].Character == nil || page.Conversations[0].Character.Name != "Sherlock" {
		t.Fatalf("character not preloaded")
	}

	empty, err := s.List(ctx, "nobody", 1, 10)
	if err != nil || empty.Pagination.Total != 0 || empty.Conversations == nil {
		t.Fatalf("empty list = %+v, %v", empty, err)
	}
}

func TestConversationService_Version_ChangesOnWrite(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()

	v0, err := s.Version(ctx, u.ID)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if !strings.HasPrefix(v0, `W/"`) {
		t.Fatalf("not a weak etag: %s", v0)
	}
	if _, err := s.Create(ctx, u.ID, ch.ID, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	v1, _ := s.Version(ctx, u.ID)
	if v1 == v0 {
		t.Fatalf("version did not change after create")
	}
	v2, _ := s.Version(ctx, u.ID)
	if v2 != v1 {
		t.Fatalf("version changed without writes")
	}
}

func TestConversationService_OwnershipIsNotFound(t *testing.T) {
	db := newSvcDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	ch := seedCharacter(t, db, alice.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()
	conv, _ := s.Create(ctx, alice.ID, ch.ID, "")

	if _, err := s.Get(ctx, conv.ID, bob.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.UpdateTitle(ctx, conv.ID, bob.ID, "x"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("UpdateTitle: %v", err)
	}
	if err := s.Delete(ctx, conv.ID, bob.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Clear(ctx, conv.ID, bob.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Stats(ctx, conv.ID, bob.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Stats: %v", err)
	}
}

func TestConversationService_UpdateTitle(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()
	conv, _ := s.Create(ctx, u.ID, ch.ID, "")

	got, err := s.UpdateTitle(ctx, conv.ID, u.ID, "  The  Hound ")
	if err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	if got.Title != "The Hound" || got.Character == nil {
		t.Fatalf("got %+v", got)
	}
	if _, err := s.UpdateTitle(ctx, conv.ID, u.ID, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank title: %v", err)
	}
}

// Deleting a conversation makes it and its history unreachable.
func TestConversationService_Delete_ThenLookupsAre404(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	convs := NewConversationService(db)
	msgs := NewMessageService(db, &fakeGen{})
	ctx := context.Background()

	conv, _ := convs.Create(ctx, u.ID, ch.ID, "")
	if _, err := msgs.Send(ctx, u.ID, SendInput{ConversationID: conv.ID, Message: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := convs.Delete(ctx, conv.ID, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := convs.Get(ctx, conv.ID, u.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := msgs.Messages(ctx, u.ID, conv.ID, 50, time.Time{}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Messages after delete: %v", err)
	}
	var n int64
	db.Model(&domain.Message{}).Where("conversation_id = ?", conv.ID).Count(&n)
	if n != 0 {
		t.Fatalf("%d orphan messages left", n)
	}
}

func TestConversationService_ClearAndStats(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, "alice")
	ch := seedCharacter(t, db, u.ID, "Sherlock", nil)
	s := NewConversationService(db)
	ctx := context.Background()
	conv, _ := s.Create(ctx, u.ID, ch.ID, "")

	base := time.Now().UTC().Add(-time.Hour)
	u1, _ := repo.CreateMessage(ctx, db, conv.ID, domain.RoleUser, "hello there detective", domain.MessageMetadata{})
	a1, _ := repo.CreateMessage(ctx, db, conv.ID, domain.RoleAssistant, "good  evening", domain.MessageMetadata{})
	setMessageTime(t, db, u1.ID, base)
	setMessageTime(t, db, a1.ID, base.Add(time.Minute))

	st, err := s.Stats(ctx, conv.ID, u.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalMessages != 2 || st.UserMessages != 1 || st.AssistantMessages != 1 {
		t.Fatalf("counts = %+v", st)
	}
	if st.UserWords != 3 || st.AssistantWords != 2 || st.TotalWords != 5 {
		t.Fatalf("words = %+v", st)
	}
	if st.FirstMessageAt == nil || st.LastMessageAt == nil || !st.LastMessageAt.After(*st.FirstMessageAt) {
		t.Fatalf("bounds = %v %v", st.FirstMessageAt, st.LastMessageAt)
	}

	before, _ := repo.GetConversation(ctx, db, conv.ID, u.ID)
	time.Sleep(5 * time.Millisecond)
	if err := s.Clear(ctx, conv.ID, u.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	after, err := repo.GetConversation(ctx, db, conv.ID, u.ID)
	if err != nil {
		t.Fatalf("conversation should survive clear: %v", err)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updated_at not bumped")
	}
	st, _ = s.Stats(ctx, conv.ID, u.ID)
	if st.TotalMessages != 0 || st.FirstMessageAt != nil {
		t.Fatalf("stats after clear = %+v", st)
	}
}
