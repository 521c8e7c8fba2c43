// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/config"
	"github.com/tbourn/persona-chat-backend/internal/docs"
	"github.com/tbourn/persona-chat-backend/internal/http/handlers"
	"github.com/tbourn/persona-chat-backend/internal/http/middleware"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Dependencies are the collaborators RegisterRoutes builds services from.
type Dependencies struct {
	DB     *gorm.DB
	Tokens *auth.TokenManager
	// AI generates replies; *ai.Dispatcher in production.
	AI services.ReplyGenerator
	// Notifier delivers password reset links; nil logs them.
	Notifier services.ResetNotifier
	// StartedAt is reported as uptime by /health.
	StartedAt time.Time
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and request deadline
//  6. Metrics
//  7. Global rate limiter (per user/IP)
//  8. CORS, compression and security headers
//
// Authentication, idempotency validation and the chat rate limiter are
// attached per route, so they run with the caller already resolved.
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Dependencies) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to the JSON error envelope
	r.Use(middleware.Recovery())

	// 5) Body cap and per-request deadline
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	general := middleware.NewRateLimiter("general", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(general.Handler())

	// 8) CORS posture, compression, security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "Route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "Method not allowed")
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/tokens/ai
	authSvc := services.NewAuthService(deps.DB, deps.Tokens, cfg.Auth.GatewayURL, cfg.Auth.FrontendURL)
	if deps.Notifier != nil {
		authSvc.Notifier = deps.Notifier
	}
	charSvc := services.NewCharacterService(deps.DB)
	convSvc := services.NewConversationService(deps.DB)
	msgSvc := services.NewMessageService(deps.DB, deps.AI)
	if cfg.IdempotencyTTL > 0 {
		msgSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}

	h := handlers.New(authSvc, charSvc, convSvc, msgSvc, handlers.Options{
		Environment: cfg.Environment,
		Production:  cfg.IsProduction(),
		StartedAt:   deps.StartedAt,
	})

	// Liveness/health
	r.GET("/health", h.Health)

	requireAuth := middleware.RequireAuth(deps.Tokens)
	optionalAuth := middleware.OptionalAuth(deps.Tokens)

	chatLimiter := middleware.NewRateLimiter("chat", cfg.ChatRateRPS, cfg.ChatRateBurst, middleware.KeyByUserOrIP())
	idempotent := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		msgSvc.HasReplay,
	)

	api := groupWithPrefix(r, cfg.APIBasePath)

	a := api.Group("/auth")
	{
		a.POST("/signup", h.SignUp)
		a.POST("/signin", h.SignIn)
		a.POST("/refresh", h.Refresh)
		a.POST("/reset-password", h.ResetPassword)
		a.POST("/oauth/:provider", h.OAuth)
		a.POST("/update-password", optionalAuth, h.UpdatePassword)
		a.POST("/signout", requireAuth, h.SignOut)
		a.GET("/user", requireAuth, h.CurrentUser)
		a.PUT("/profile", requireAuth, h.UpdateProfile)
	}

	ch := api.Group("/characters")
	{
		ch.GET("", optionalAuth, h.ListCharacters)
		ch.GET("/featured", h.FeaturedCharacters)
		ch.GET("/categories", h.CharacterCategories)
		ch.GET("/:id", optionalAuth, h.GetCharacter)
		ch.POST("", requireAuth, h.CreateCharacter)
		ch.PUT("/:id", requireAuth, h.UpdateCharacter)
		ch.DELETE("/:id", requireAuth, h.DeleteCharacter)
		ch.POST("/:id/like", requireAuth, h.LikeCharacter)
	}

	cv := api.Group("/conversations", requireAuth)
	{
		cv.GET("", h.ListConversations)
		cv.POST("", h.CreateConversation)
		cv.GET("/:id", h.GetConversation)
		cv.PUT("/:id", h.UpdateConversation)
		cv.DELETE("/:id", h.DeleteConversation)
		cv.DELETE("/:id/messages", h.ClearConversation)
		cv.GET("/:id/stats", h.ConversationStats)
	}

	chat := api.Group("/chat", requireAuth)
	{
		// Idempotency validation runs before the limiter so replays bypass it.
		chat.POST("/send", idempotent, chatLimiter.Handler(), h.SendMessage)
		chat.POST("/regenerate", chatLimiter.Handler(), h.RegenerateMessage)
		chat.GET("/:conversation_id/messages", h.ListMessages)
		chat.DELETE("/messages/:message_id", h.DeleteMessage)
		chat.GET("/messages/:message_id/revisions", h.MessageRevisions)
	}
}

// corsMiddleware allows the configured origins, or every origin without
// credentials when none are configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", handlers.HeaderIdempotentReplay},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
