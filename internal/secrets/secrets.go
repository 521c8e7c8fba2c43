// Package secrets resolves credentials from the environment or HashiCorp
// Vault (KV v2) so provider keys never need to live in the client.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/persona-chat-backend/internal/config"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Well-known secret keys.
const (
	KeyOpenAI    = "openai_api_key"
	KeyAnthropic = "anthropic_api_key"
	KeyGemini    = "gemini_api_key"
	KeyJWT       = "jwt_secret"
)

// Source looks up a secret by key.
type Source interface {
	Lookup(ctx context.Context, key string) (string, error)
}

// EnvSource reads secrets from environment variables (openai_api_key →
// OPENAI_API_KEY).
type EnvSource struct{}

func (EnvSource) Lookup(_ context.Context, key string) (string, error) {
	v := os.Getenv(envKey(key))
	if v == "" {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// VaultSource reads all keys from a single KV v2 secret and caches them.
type VaultSource struct {
	client *vault.Client
	mount  string
	path   string

	mu       sync.RWMutex
	cache    map[string]string
	loadedAt time.Time
	ttl      time.Duration
}

// NewVaultSource builds a client for cfg. It does not contact Vault.
func NewVaultSource(cfg config.VaultConfig) (*VaultSource, error) {
	if cfg.Addr == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}
	vc := vault.DefaultConfig()
	vc.Address = cfg.Addr
	vc.Timeout = 10 * time.Second
	vc.MaxRetries = 2
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &VaultSource{
		client: client,
		mount:  mount,
		path:   cfg.SecretPath,
		ttl:    5 * time.Minute,
	}, nil
}

func (v *VaultSource) Lookup(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	fresh := v.cache != nil && time.Since(v.loadedAt) < v.ttl
	val, ok := v.cache[key]
	v.mu.RUnlock()
	if fresh {
		if !ok {
			return "", ErrSecretNotFound
		}
		return val, nil
	}

	if err := v.refresh(ctx); err != nil {
		return "", err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if val, ok := v.cache[key]; ok {
		return val, nil
	}
	return "", ErrSecretNotFound
}

func (v *VaultSource) refresh(ctx context.Context) error {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("read %s/%s: %w", v.mount, v.path, err)
	}
	data := make(map[string]string, len(secret.Data))
	for k, raw := range secret.Data {
		if s, ok := raw.(string); ok && s != "" {
			data[k] = s
		}
	}
	v.mu.Lock()
	v.cache, v.loadedAt = data, time.Now()
	v.mu.Unlock()
	return nil
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Lookup(ctx context.Context, key string) (string, error) {
	var lastErr error = ErrSecretNotFound
	for _, s := range c {
		val, err := s.Lookup(ctx, key)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
			log.Warn().Err(err).Str("key", key).Msg("secret source failed, trying next")
		}
	}
	return "", lastErr
}

// Apply fills provider keys and the JWT secret on cfg from src. Values found
// in src replace those loaded from the environment.
func Apply(ctx context.Context, src Source, cfg *config.Config) error {
	targets := []struct {
		key string
		dst *string
	}{
		{KeyOpenAI, &cfg.AI.OpenAIKey},
		{KeyAnthropic, &cfg.AI.AnthropicKey},
		{KeyGemini, &cfg.AI.GeminiKey},
		{KeyJWT, &cfg.Auth.JWTSecret},
	}
	for _, t := range targets {
		val, err := src.Lookup(ctx, t.key)
		switch {
		case err == nil:
			*t.dst = val
		case errors.Is(err, ErrSecretNotFound):
		default:
			return fmt.Errorf("resolve %s: %w", t.key, err)
		}
	}
	return nil
}
