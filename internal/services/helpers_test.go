package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/persona-chat-backend/internal/ai"
	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Email: username + "@example.com", Username: username}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedCharacter(t *testing.T, db *gorm.DB, creatorID, name string, mutate func(*domain.Character)) *domain.Character {
	t.Helper()
	c := &domain.Character{
		Name:        name,
		Description: name + " description",
		Personality: "wise",
		Traits:      datatypes.JSONSlice[string]{},
		Tags:        datatypes.JSONSlice[string]{},
		CreatorID:   creatorID,
		IsPublic:    true,
	}
	if mutate != nil {
		mutate(c)
	}
	if err := repo.CreateCharacter(context.Background(), db, c); err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	return c
}

type fakeGen struct {
	content   string
	err       error
	panicWith any
	calls     []ai.Request
}

func (f *fakeGen) Generate(_ context.Context, req ai.Request) (*ai.Response, error) {
	f.calls = append(f.calls, req)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	content := f.content
	if content == "" {
		content = fmt.Sprintf("reply #%d", len(f.calls))
	}
	return &ai.Response{Content: content, Provider: ai.ProviderOpenAI, Model: "gpt-test", Timestamp: "2024-01-01T00:00:00Z"}, nil
}
