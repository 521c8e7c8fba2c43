// Package config provides application configuration loaded from environment
// variables with defaults and validation. It covers the HTTP server, storage,
// authentication, AI providers, secrets, rate limiting and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the persistence backend.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file (sqlite driver)
	URL    string // DSN (postgres driver)
}

// AuthConfig holds session token settings for the auth gateway.
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	GatewayURL      string // OAuth authorize base URL
	FrontendURL     string // redirect target after OAuth and password reset
	RedisURL        string // optional; enables the redis revocation store
}

// AIConfig holds provider credentials and model defaults.
type AIConfig struct {
	OpenAIKey       string
	AnthropicKey    string
	GeminiKey       string
	OpenAIModel     string
	AnthropicModel  string
	GeminiModel     string
	OpenAIMaxTokens int
}

// HasAnyKey reports whether at least one provider is configured.
func (a AIConfig) HasAnyKey() bool {
	return a.OpenAIKey != "" || a.AnthropicKey != "" || a.GeminiKey != ""
}

// VaultConfig enables resolving provider keys from HashiCorp Vault (KV v2).
type VaultConfig struct {
	Enabled    bool
	Addr       string
	Token      string
	Mount      string
	SecretPath string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s, LLM calls are slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	RequestTimeout    time.Duration // per-request deadline

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	Environment    string // APP_ENV or NODE_ENV

	DB DBConfig

	// Rate limiting
	RateRPS       float64 // tokens per second (>= 0)
	RateBurst     int     // bucket size (>= 1)
	ChatRateRPS   float64 // send/regenerate bucket
	ChatRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Auth  AuthConfig
	AI    AIConfig
	Vault VaultConfig

	// Observability
	OTEL OTELConfig
}

// IsProduction reports whether internal error details must be hidden.
func (c Config) IsProduction() bool { return c.Environment == "production" }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	frontend := strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/")

	cfg := Config{
		// Server
		Port:              getenv("PORT", "3001"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		RequestTimeout:    getdur("REQUEST_TIMEOUT", 30*time.Second),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		Environment:    strings.ToLower(firstNonEmpty(os.Getenv("APP_ENV"), os.Getenv("NODE_ENV"), "development")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "persona.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		// Rate limiting
		RateRPS:       getfloat("RATE_RPS", 10.0),
		RateBurst:     getint("RATE_BURST", 20),
		ChatRateRPS:   getfloat("CHAT_RATE_RPS", 0.5),
		ChatRateBurst: getint("CHAT_RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", frontend)),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth: AuthConfig{
			JWTSecret:       getenv("JWT_SECRET", ""),
			AccessTokenTTL:  getdur("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getdur("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			GatewayURL:      strings.TrimRight(getenv("GATEWAY_URL", "http://localhost:9999"), "/"),
			FrontendURL:     frontend,
			RedisURL:        getenv("REDIS_URL", ""),
		},

		AI: AIConfig{
			OpenAIKey:       getenv("OPENAI_API_KEY", ""),
			AnthropicKey:    getenv("ANTHROPIC_API_KEY", ""),
			GeminiKey:       getenv("GEMINI_API_KEY", ""),
			OpenAIModel:     getenv("OPENAI_MODEL", "gpt-3.5-turbo"),
			AnthropicModel:  getenv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			GeminiModel:     getenv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIMaxTokens: getint("OPENAI_MAX_TOKENS", 1000),
		},

		Vault: VaultConfig{
			Enabled:    getbool("VAULT_ENABLED", false),
			Addr:       getenv("VAULT_ADDR", "http://127.0.0.1:8200"),
			Token:      getenv("VAULT_TOKEN", ""),
			Mount:      getenv("VAULT_MOUNT", "secret"),
			SecretPath: getenv("VAULT_SECRET_PATH", "persona-chat"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "persona-chat-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = "dev-insecure-secret"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 || cfg.ChatRateRPS < 0 {
		return cfg, errors.New("RATE_RPS and CHAT_RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 || cfg.ChatRateBurst < 1 {
		return cfg, errors.New("RATE_BURST and CHAT_RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Vault.Enabled {
		return cfg, errors.New("JWT_SECRET is required in production")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return cfg, errors.New("token TTLs must be positive durations")
	}
	if cfg.AI.OpenAIMaxTokens <= 0 {
		return cfg, errors.New("OPENAI_MAX_TOKENS must be > 0")
	}
	if cfg.Vault.Enabled && strings.TrimSpace(cfg.Vault.Token) == "" {
		return cfg, errors.New("VAULT_TOKEN is required when VAULT_ENABLED=true")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
