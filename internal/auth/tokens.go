// Package auth issues and verifies session tokens, hashes passwords and builds
// OAuth redirect URLs for the auth gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrRevokedToken   = errors.New("token has been revoked")
	ErrWrongTokenType = errors.New("wrong token type")
)

const issuer = "persona-chat"

// Claims carried by every token. Subject is the user ID, ID the jti.
type Claims struct {
	Email string    `json:"email,omitempty"`
	Type  TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Session is the token pair handed to clients.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// TokenManager signs HS256 tokens and checks them against a revocation store.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    RevocationStore
	now        func() time.Time
}

// NewTokenManager returns a manager. A nil store disables revocation checks.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, store RevocationStore) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revoked:    store,
		now:        time.Now,
	}
}

// IssueSession creates a fresh access/refresh pair for a user.
func (m *TokenManager) IssueSession(userID, email string) (*Session, error) {
	now := m.now()
	access, err := m.sign(userID, email, TokenAccess, now, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(userID, email, TokenRefresh, now, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	exp := now.Add(m.accessTTL)
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
		ExpiresAt:    exp.Unix(),
	}, nil
}

func (m *TokenManager) sign(userID, email string, typ TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		Email: email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify parses raw, checks signature, expiry, type and revocation.
func (m *TokenManager) Verify(ctx context.Context, raw string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, c *Claims) error {
	if m.revoked == nil || c == nil || c.ExpiresAt == nil {
		return nil
	}
	ttl := c.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.revoked.Revoke(ctx, c.ID, ttl)
}
