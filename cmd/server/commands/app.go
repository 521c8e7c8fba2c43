package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/ai"
	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/config"
	"github.com/tbourn/persona-chat-backend/internal/observability"
	"github.com/tbourn/persona-chat-backend/internal/repo"
	"github.com/tbourn/persona-chat-backend/internal/secrets"
	"github.com/tbourn/persona-chat-backend/internal/sysutil"
)

// loadConfig reads the environment, resolves secrets and configures logging.
func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	chain := secrets.Chain{}
	if cfg.Vault.Enabled {
		vs, err := secrets.NewVaultSource(cfg.Vault)
		if err != nil {
			return cfg, fmt.Errorf("vault: %w", err)
		}
		chain = append(chain, vs)
	}
	chain = append(chain, secrets.EnvSource{})

	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := secrets.Apply(rctx, chain, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Auth.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET not found in environment or vault")
	}
	return cfg, nil
}

// openDB connects, optionally instruments and migrates the database.
func openDB(cfg config.Config, migrate bool) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	if err := observability.InstrumentDB(db, cfg.OTEL); err != nil {
		return nil, err
	}
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// newRevocationStore picks redis when REDIS_URL is set, memory otherwise.
func newRevocationStore(ctx context.Context, cfg config.AuthConfig) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("token revocation: in-memory store")
		return auth.NewMemoryRevocationStore(), func() {}, nil
	}
	client := auth.NewRedisClient(cfg.RedisURL)
	store := auth.NewRedisRevocationStore(client)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Msg("token revocation: redis store")
	return store, func() { _ = client.Close() }, nil
}

// newDispatcher registers one provider per configured API key.
func newDispatcher(ctx context.Context, cfg config.AIConfig) (*ai.Dispatcher, error) {
	var providers []ai.Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(cfg.OpenAIKey, "", cfg.OpenAIMaxTokens))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, ai.NewAnthropicProvider(cfg.AnthropicKey, ""))
	}
	if cfg.GeminiKey != "" {
		g, err := ai.NewGeminiProvider(ctx, cfg.GeminiKey, "")
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		providers = append(providers, g)
	}

	d := ai.NewDispatcher(ai.DefaultModels{
		ai.ProviderOpenAI:    cfg.OpenAIModel,
		ai.ProviderAnthropic: cfg.AnthropicModel,
		ai.ProviderGemini:    cfg.GeminiModel,
	}, providers...)

	if !cfg.HasAnyKey() {
		log.Warn().Msg("no AI provider keys configured; replies will use the fallback text")
	} else {
		log.Info().Strs("providers", d.Configured()).Msg("ai providers configured")
	}
	return d, nil
}
