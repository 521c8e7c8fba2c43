package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

func TestConversationsStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	n, latest, err := ConversationsStats(ctx, db, "nobody")
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("empty stats: n=%d latest=%v err=%v", n, latest, err)
	}

	conv := mustConversation(t, db, "alice")
	want := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	db.Model(&domain.Conversation{}).Where("id = ?", conv.ID).UpdateColumn("updated_at", want)

	n, latest, err = ConversationsStats(ctx, db, conv.UserID)
	if err != nil || n != 1 || latest == nil || !latest.Equal(want) {
		t.Fatalf("stats: n=%d latest=%v err=%v", n, latest, err)
	}
}
