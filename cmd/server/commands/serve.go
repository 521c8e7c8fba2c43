package commands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/config"
	httpapi "github.com/tbourn/persona-chat-backend/internal/http"
	"github.com/tbourn/persona-chat-backend/internal/observability"
	"github.com/tbourn/persona-chat-backend/internal/repo"
	"github.com/tbourn/persona-chat-backend/internal/sysutil"
)

var (
	seedOnStart   bool
	purgeInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&seedOnStart, "seed", false, "seed the built-in catalog before serving (or SEED_ON_START)")
	serveCmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "how often expired idempotency records are purged (0 disables)")
}

func runServe(ctx context.Context) error {
	startedAt := time.Now()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg, true)
	if err != nil {
		return err
	}
	defer closeDB(db)

	if seedOnStart || sysutil.IsTruthy(os.Getenv("SEED_ON_START")) {
		if _, err := seedCatalog(ctx, db); err != nil {
			return err
		}
	}

	store, closeStore, err := newRevocationStore(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	defer closeStore()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, store)

	dispatcher, err := newDispatcher(ctx, cfg.AI)
	if err != nil {
		return err
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Dependencies{
		DB:        db,
		Tokens:    tokens,
		AI:        dispatcher,
		StartedAt: startedAt,
	})

	go purgeIdempotency(ctx, db, purgeInterval)

	return listen(ctx, cfg, r)
}

// listen serves until ctx is cancelled, then drains in-flight requests.
func listen(ctx context.Context, cfg config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Environment).
			Str("base_path", cfg.APIBasePath).
			Str("db", cfg.DB.Driver).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

// purgeIdempotency deletes expired idempotency rows every interval.
func purgeIdempotency(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired idempotency records")
			}
		}
	}
}
