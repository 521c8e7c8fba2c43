package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

func TestCreateCharacter_PersistsFalseBooleans(t *testing.T) {
	db := newRepoDB(t)
	u := mustUser(t, db, "alice")
	c := mustCharacter(t, db, u.ID, func(c *domain.Character) { c.IsPublic = false })

	got, err := GetCharacter(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if got.IsPublic {
		t.Fatalf("is_public=false was not persisted")
	}
	if got.Creator == nil || got.Creator.Username != "alice" || got.Creator.Email != "" {
		t.Fatalf("creator summary unexpected: %+v", got.Creator)
	}
}

func TestListCharacters_FilterSearchSortVisibility(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	alice := mustUser(t, db, "alice")
	bob := mustUser(t, db, "bob")

	mustCharacter(t, db, alice.ID, func(c *domain.Character) {
		c.Name, c.Category, c.ChatCount = "Ada", "science", 5
		c.Tags = datatypes.JSONSlice[string]{"Math", "history"}
	})
	mustCharacter(t, db, alice.ID, func(c *domain.Character) {
		c.Name, c.Category, c.ChatCount = "Zed", "fantasy", 50
	})
	mustCharacter(t, db, bob.ID, func(c *domain.Character) {
		c.Name, c.Category, c.IsPublic = "Secret", "science", false
	})

	total, err := CountCharacters(ctx, db, CharacterFilter{})
	if err != nil || total != 2 {
		t.Fatalf("anonymous total=%d err=%v, want 2", total, err)
	}
	total, _ = CountCharacters(ctx, db, CharacterFilter{ViewerID: bob.ID})
	if total != 3 {
		t.Fatalf("owner should see own private character, total=%d", total)
	}

	list, err := ListCharacters(ctx, db, CharacterFilter{}, 0, 10)
	if err != nil || len(list) != 2 || list[0].Name != "Zed" {
		t.Fatalf("popular sort: %+v err=%v", list, err)
	}
	list, _ = ListCharacters(ctx, db, CharacterFilter{Sort: SortName}, 0, 10)
	if list[0].Name != "Ada" {
		t.Fatalf("name sort: first=%q", list[0].Name)
	}
	list, _ = ListCharacters(ctx, db, CharacterFilter{Search: "MATH"}, 0, 10)
	if len(list) != 1 || list[0].Name != "Ada" {
		t.Fatalf("tag search should be case-insensitive: %+v", list)
	}
	list, _ = ListCharacters(ctx, db, CharacterFilter{Category: "science"}, 0, 10)
	if len(list) != 1 {
		t.Fatalf("category filter: %d", len(list))
	}
	list, _ = ListCharacters(ctx, db, CharacterFilter{CreatorID: alice.ID}, 1, 10)
	if len(list) != 1 {
		t.Fatalf("offset paging: %d", len(list))
	}
}

func TestFeaturedAndCategories(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	mustCharacter(t, db, u.ID, func(c *domain.Character) { c.IsFeatured, c.LikeCount, c.Category = true, 1, "anime" })
	mustCharacter(t, db, u.ID, func(c *domain.Character) { c.IsFeatured, c.LikeCount, c.Category = true, 9, "anime" })
	mustCharacter(t, db, u.ID, func(c *domain.Character) { c.Category = "gaming" })

	feat, err := ListFeatured(ctx, db, 10)
	if err != nil || len(feat) != 2 || feat[0].LikeCount != 9 {
		t.Fatalf("featured=%+v err=%v", feat, err)
	}

	cats, err := ListCategories(ctx, db)
	if err != nil || len(cats) != 2 {
		t.Fatalf("categories=%+v err=%v", cats, err)
	}
	if cats[0].Category != "anime" || cats[0].Count != 2 {
		t.Fatalf("unexpected first category: %+v", cats[0])
	}
}

func TestCounters_AreAtomicAndFloored(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	c := mustCharacter(t, db, u.ID, nil)

	for i := 0; i < 3; i++ {
		if err := IncrementViewCount(ctx, db, c.ID); err != nil {
			t.Fatalf("IncrementViewCount: %v", err)
		}
	}
	if err := IncrementChatCount(ctx, db, c.ID); err != nil {
		t.Fatalf("IncrementChatCount: %v", err)
	}
	if err := AdjustLikeCount(ctx, db, c.ID, -1); err != nil {
		t.Fatalf("AdjustLikeCount: %v", err)
	}

	got, _ := GetCharacter(ctx, db, c.ID)
	if got.ViewCount != 3 || got.ChatCount != 1 || got.LikeCount != 0 {
		t.Fatalf("counters view=%d chat=%d like=%d", got.ViewCount, got.ChatCount, got.LikeCount)
	}
	if err := AdjustLikeCount(ctx, db, c.ID, 1); err != nil {
		t.Fatalf("AdjustLikeCount: %v", err)
	}
	if n, err := LikeCount(ctx, db, c.ID); err != nil || n != 1 {
		t.Fatalf("LikeCount=%d err=%v", n, err)
	}
}

func TestLikes_UniquePerPair(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	c := mustCharacter(t, db, u.ID, nil)

	if err := CreateLike(ctx, db, c.ID, u.ID); err != nil {
		t.Fatalf("CreateLike: %v", err)
	}
	if err := CreateLike(ctx, db, c.ID, u.ID); !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if _, err := FindLike(ctx, db, c.ID, u.ID); err != nil {
		t.Fatalf("FindLike: %v", err)
	}
	if err := DeleteLike(ctx, db, c.ID, u.ID); err != nil {
		t.Fatalf("DeleteLike: %v", err)
	}
	if _, err := FindLike(ctx, db, c.ID, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteCharacter_RemovesDependents(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mustUser(t, db, "alice")
	c := mustCharacter(t, db, u.ID, nil)
	conv, err := CreateConversation(ctx, db, u.ID, c.ID, "t")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := CreateMessage(ctx, db, conv.ID, domain.RoleUser, "hi", domain.MessageMetadata{}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	_ = CreateLike(ctx, db, c.ID, u.ID)

	if err := DeleteCharacter(ctx, db, c.ID); err != nil {
		t.Fatalf("DeleteCharacter: %v", err)
	}
	for _, model := range []any{&domain.Character{}, &domain.Conversation{}, &domain.Message{}, &domain.CharacterLike{}} {
		var n int64
		db.Model(model).Count(&n)
		if n != 0 {
			t.Fatalf("%T rows left: %d", model, n)
		}
	}
	if err := DeleteCharacter(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestUpdateCharacter_NotFound(t *testing.T) {
	db := newRepoDB(t)
	err := UpdateCharacter(context.Background(), db, "missing", map[string]any{"name": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
