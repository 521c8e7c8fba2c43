// Package handlers exposes the REST endpoints of the persona chat API.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below, and translate results
// and sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/http/middleware"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService covers accounts, sessions and profiles.
type AuthService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*services.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*services.AuthResult, error)
	SignOut(ctx context.Context, access *auth.Claims, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, userID, resetToken, password string) error
	OAuthURL(provider string) (string, error)
	CurrentUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*domain.User, error)
}

// CharacterService covers the character catalog.
type CharacterService interface {
	List(ctx context.Context, viewerID string, q services.CharacterQuery) (*services.CharacterPage, error)
	Featured(ctx context.Context) ([]domain.Character, error)
	Categories(ctx context.Context) ([]services.Category, error)
	Get(ctx context.Context, id, viewerID string) (*domain.Character, error)
	Create(ctx context.Context, ownerID string, in services.CharacterInput) (*domain.Character, error)
	Update(ctx context.Context, id, callerID string, in services.CharacterInput) (*domain.Character, error)
	Delete(ctx context.Context, id, callerID string) error
	ToggleLike(ctx context.Context, id, userID string) (*services.LikeResult, error)
}

// ConversationService covers conversation lifecycle.
type ConversationService interface {
	Create(ctx context.Context, userID, characterID, title string) (*domain.Conversation, error)
	List(ctx context.Context, userID string, page, limit int) (*services.ConversationPage, error)
	Version(ctx context.Context, userID string) (string, error)
	Get(ctx context.Context, id, userID string) (*domain.Conversation, error)
	UpdateTitle(ctx context.Context, id, userID, title string) (*domain.Conversation, error)
	Delete(ctx context.Context, id, userID string) error
	Clear(ctx context.Context, id, userID string) error
	Stats(ctx context.Context, id, userID string) (*services.ConversationStats, error)
}

// MessageService covers sending, regenerating and browsing messages.
type MessageService interface {
	Send(ctx context.Context, userID string, in services.SendInput) (*services.SendResult, error)
	Regenerate(ctx context.Context, userID string, in services.RegenerateInput) (*services.RegenerateResult, error)
	Messages(ctx context.Context, userID, conversationID string, limit int, before time.Time) (*services.MessagePage, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
	Revisions(ctx context.Context, userID, messageID string) ([]domain.MessageRevision, error)
}

//
// Handler wiring
//

// Options carries environment facts the handlers report or act on.
type Options struct {
	Environment string
	Production  bool
	StartedAt   time.Time
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	auth  AuthService
	chars CharacterService
	convs ConversationService
	msgs  MessageService

	env        string
	production bool
	startedAt  time.Time
	now        func() time.Time
}

// New constructs Handlers bound to the given services.
func New(a AuthService, ch CharacterService, cv ConversationService, m MessageService, opt Options) *Handlers {
	useJSONFieldNames()
	started := opt.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return &Handlers{
		auth:       a,
		chars:      ch,
		convs:      cv,
		msgs:       m,
		env:        opt.Environment,
		production: opt.Production,
		startedAt:  started,
		now:        time.Now,
	}
}

// pathUUID reads a UUID path parameter, failing with 400 when malformed.
func pathUUID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a UUID", nil)
		return "", false
	}
	return id, true
}

// userID is the authenticated caller; "" on public routes without a token.
func userID(c *gin.Context) string { return middleware.UserID(c) }
