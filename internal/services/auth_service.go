// Package services – AuthService
//
// This file implements the auth gateway: account signup and signin, session
// refresh and signout (token revocation), password reset by one-time token,
// OAuth redirect URLs, and profile reads/updates.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/repo"
)

// ResetNotifier delivers password reset links.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogNotifier writes reset links to the debug log. It stands in for a mailer.
type LogNotifier struct{}

func (LogNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	log.Ctx(ctx).Debug().Str("email", email).Str("link", link).Msg("password reset requested")
	return nil
}

// AuthService implements account and session operations.
type AuthService struct {
	DB          *gorm.DB
	Tokens      *auth.TokenManager
	Notifier    ResetNotifier
	GatewayURL  string
	FrontendURL string
	ResetTTL    time.Duration
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, tokens *auth.TokenManager, gatewayURL, frontendURL string) *AuthService {
	return &AuthService{
		DB:          db,
		Tokens:      tokens,
		Notifier:    LogNotifier{},
		GatewayURL:  gatewayURL,
		FrontendURL: frontendURL,
		ResetTTL:    time.Hour,
	}
}

// SignUpInput is a registration request.
type SignUpInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// AuthResult is a user with a fresh session.
type AuthResult struct {
	User    *domain.User  `json:"user"`
	Session *auth.Session `json:"session"`
}

// ProfileInput carries profile fields; nil means unchanged.
type ProfileInput struct {
	Username  *string
	FullName  *string
	Bio       *string
	AvatarURL *string
	Website   *string
	Location  *string
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if email == "" || !strings.Contains(email, "@") || username == "" {
		return nil, fmt.Errorf("%w: email and username are required", ErrInvalidInput)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	if _, err := repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if taken, err := repo.UsernameTaken(ctx, s.DB, username, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	u := &domain.User{
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if repo.IsUniqueViolation(err) {
			if strings.Contains(strings.ToLower(err.Error()), "username") {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return s.session(u)
}

// SignIn checks credentials and issues a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *AuthService) session(u *domain.User) (*AuthResult, error) {
	sess, err := s.Tokens.IssueSession(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Session: sess}, nil
}

// SignOut revokes the caller's access token and, when given, the refresh
// token of the same user.
func (s *AuthService) SignOut(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if err := s.Tokens.Revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	rc, err := s.Tokens.Verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil || rc.Subject != access.Subject {
		return nil
	}
	return s.Tokens.Revoke(ctx, rc)
}

// Refresh rotates a refresh token into a new session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	rc, err := s.Tokens.Verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	u, err := repo.GetUser(ctx, s.DB, rc.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := s.Tokens.Revoke(ctx, rc); err != nil {
		return nil, err
	}
	return s.session(u)
}

// ResetPassword sends a reset link when email belongs to an account. It
// reports success either way so callers cannot probe for accounts.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	raw, hash, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	if _, err := repo.CreatePasswordReset(ctx, s.DB, u.ID, hash, s.ResetTTL); err != nil {
		return err
	}
	link := strings.TrimRight(s.FrontendURL, "/") + "/auth/reset-password?token=" + url.QueryEscape(raw)
	return s.Notifier.SendPasswordReset(ctx, u.Email, link)
}

// UpdatePassword sets a new password for userID, or, when userID is empty,
// for the owner of a valid reset token.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, resetToken, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userID == "" {
			if resetToken == "" {
				return ErrUnauthorized
			}
			pr, err := repo.ConsumePasswordReset(ctx, tx, auth.HashResetToken(resetToken), time.Now().UTC())
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("%w: invalid or expired reset token", ErrUnauthorized)
				}
				return err
			}
			userID = pr.UserID
		}
		err := repo.UpdateUser(ctx, tx, userID, map[string]any{"password_hash": hash})
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	})
}

// OAuthURL returns the gateway authorize URL for provider.
func (s *AuthService) OAuthURL(provider string) (string, error) {
	u, err := auth.OAuthURL(s.GatewayURL, s.FrontendURL, provider)
	if errors.Is(err, auth.ErrUnsupportedOAuthProvider) {
		return "", fmt.Errorf("%w: unsupported oauth provider %q", ErrInvalidInput, provider)
	}
	return u, err
}

// CurrentUser loads the profile of userID.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile applies profile changes. Usernames stay unique.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*domain.User, error) {
	fields := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = strings.TrimSpace(*v)
		}
	}
	set("full_name", in.FullName)
	set("bio", in.Bio)
	set("avatar_url", in.AvatarURL)
	set("website", in.Website)
	set("location", in.Location)

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
		}
		taken, err := repo.UsernameTaken(ctx, s.DB, username, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrUsernameTaken
		}
		fields["username"] = username
	}

	if len(fields) > 0 {
		if err := repo.UpdateUser(ctx, s.DB, userID, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			if repo.IsUniqueViolation(err) {
				return nil, ErrUsernameTaken
			}
			return nil, err
		}
	}
	return s.CurrentUser(ctx, userID)
}
