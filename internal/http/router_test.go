package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/persona-chat-backend/internal/ai"
	"github.com/tbourn/persona-chat-backend/internal/auth"
	"github.com/tbourn/persona-chat-backend/internal/config"
	"github.com/tbourn/persona-chat-backend/internal/repo"
)

// --- fake reply generator ---
type echoGen struct{}

func (echoGen) Generate(_ context.Context, req ai.Request) (*ai.Response, error) {
	return &ai.Response{Content: req.Character.Name + ": " + req.Message, Provider: ai.ProviderOpenAI, Model: "gpt-test"}, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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

func testConfig() config.Config {
	return config.Config{
		APIBasePath:   "/api",
		Environment:   "test",
		RateRPS:       100,
		RateBurst:     100,
		ChatRateRPS:   100,
		ChatRateBurst: 100,
		CORS:          config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}},
		OTEL:          config.OTELConfig{ServiceName: "test-svc"},
		Auth:          config.AuthConfig{GatewayURL: "http://gw.example.com", FrontendURL: "http://app.example.com"},
	}
}

func newServer(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, cfg, Dependencies{
		DB:        newTestDB(t),
		Tokens:    auth.NewTokenManager("router-secret", time.Hour, 24*time.Hour, auth.NewMemoryRevocationStore()),
		AI:        echoGen{},
		StartedAt: time.Now(),
	})
	return r
}

type client struct {
	t *testing.T
	r *gin.Engine
}

func (c client) do(method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	return w
}

func (c client) json(w *httptest.ResponseRecorder, want int) map[string]any {
	c.t.Helper()
	if w.Code != want {
		c.t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			c.t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
	}
	return out
}

func (c client) signup(email string) string {
	c.t.Helper()
	res := c.json(c.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email": email, "password": "sup3r-secret",
	}), http.StatusCreated)
	return res["session"].(map[string]any)["access_token"].(string)
}

func (c client) character(token, name string) string {
	c.t.Helper()
	res := c.json(c.do(http.MethodPost, "/api/characters", token, map[string]any{
		"name": name, "description": name + " from the stories",
	}), http.StatusCreated)
	return res["character"].(map[string]any)["id"].(string)
}

func (c client) conversation(token, characterID string) string {
	c.t.Helper()
	res := c.json(c.do(http.MethodPost, "/api/conversations", token, map[string]any{
		"character_id": characterID,
	}), http.StatusCreated)
	return res["conversation"].(map[string]any)["id"].(string)
}

func TestScenario_SendMessage(t *testing.T) {
	c := client{t, newServer(t, testConfig())}
	tok := c.signup("a@example.com")
	charID := c.character(tok, "Sherlock")
	convID := c.conversation(tok, charID)

	res := c.json(c.do(http.MethodPost, "/api/chat/send", tok, map[string]any{
		"conversation_id": convID, "message": "hi",
	}), http.StatusCreated)

	if got := res["user_message"].(map[string]any)["content"]; got != "hi" {
		t.Fatalf("user_message.content=%v", got)
	}
	asst := res["assistant_message"].(map[string]any)
	if got := asst["metadata"].(map[string]any)["character_id"]; got != charID {
		t.Fatalf("assistant metadata.character_id=%v want %s", got, charID)
	}
	if asst["content"] != "Sherlock: hi" {
		t.Fatalf("assistant content=%v", asst["content"])
	}
}

func TestScenario_DeletedConversationIsGone(t *testing.T) {
	c := client{t, newServer(t, testConfig())}
	tok := c.signup("b@example.com")
	convID := c.conversation(tok, c.character(tok, "Poirot"))
	c.json(c.do(http.MethodPost, "/api/chat/send", tok, map[string]any{
		"conversation_id": convID, "message": "bonjour",
	}), http.StatusCreated)

	c.json(c.do(http.MethodDelete, "/api/conversations/"+convID, tok, nil), http.StatusNoContent)

	body := c.json(c.do(http.MethodGet, "/api/conversations/"+convID, tok, nil), http.StatusNotFound)
	if body["code"] != "not_found" || body["status"] != float64(404) {
		t.Fatalf("envelope=%v", body)
	}
	c.json(c.do(http.MethodGet, "/api/chat/"+convID+"/messages", tok, nil), http.StatusNotFound)
}

func TestScenario_NonOwnerCannotEditCharacter(t *testing.T) {
	c := client{t, newServer(t, testConfig())}
	owner := c.signup("owner@example.com")
	intruder := c.signup("intruder@example.com")
	charID := c.character(owner, "Watson")

	body := c.json(c.do(http.MethodPut, "/api/characters/"+charID, intruder, map[string]any{
		"name": "Moriarty",
	}), http.StatusForbidden)
	if body["code"] != "forbidden" {
		t.Fatalf("envelope=%v", body)
	}

	got := c.json(c.do(http.MethodGet, "/api/characters/"+charID, "", nil), http.StatusOK)
	if name := got["character"].(map[string]any)["name"]; name != "Watson" {
		t.Fatalf("name=%v", name)
	}
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	c := client{t, newServer(t, testConfig())}

	w := c.do(http.MethodGet, "/health", "", nil, "Origin", "http://app.example.com")
	body := c.json(w, http.StatusOK)
	if body["status"] != "OK" || body["environment"] != "test" {
		t.Fatalf("health=%v", body)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
		t.Fatalf("ACAO=%q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("headers=%v", w.Header())
	}

	w = c.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	body = c.json(c.do(http.MethodGet, "/nope", "", nil), http.StatusNotFound)
	if body["code"] != "not_found" || body["requestId"] == "" {
		t.Fatalf("404 envelope=%v", body)
	}
	body = c.json(c.do(http.MethodPost, "/health", "", nil), http.StatusMethodNotAllowed)
	if body["code"] != "method_not_allowed" {
		t.Fatalf("405 envelope=%v", body)
	}

	// Swagger is off unless enabled.
	c.json(c.do(http.MethodGet, "/swagger/index.html", "", nil), http.StatusNotFound)
}

func TestRegisterRoutes_AuthRequired(t *testing.T) {
	c := client{t, newServer(t, testConfig())}
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/user"},
		{http.MethodPost, "/api/auth/signout"},
		{http.MethodPost, "/api/characters"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/chat/send"},
		{http.MethodGet, "/api/chat/" + uuid.NewString() + "/messages"},
	} {
		body := c.json(c.do(route.method, route.path, "", nil), http.StatusUnauthorized)
		if body["error"] != "Authentication required" {
			t.Fatalf("%s %s: %v", route.method, route.path, body)
		}
	}
	// Public catalog routes do not need a token.
	c.json(c.do(http.MethodGet, "/api/characters", "", nil), http.StatusOK)
	c.json(c.do(http.MethodGet, "/api/characters/featured", "", nil), http.StatusOK)
}

func TestRegisterRoutes_ChatRateLimit_ReplayBypass(t *testing.T) {
	cfg := testConfig()
	cfg.ChatRateRPS = 0.001
	cfg.ChatRateBurst = 1
	c := client{t, newServer(t, cfg)}
	tok := c.signup("limited@example.com")
	convID := c.conversation(tok, c.character(tok, "Holmes"))
	send := map[string]any{"conversation_id": convID, "message": "hello"}

	first := c.json(c.do(http.MethodPost, "/api/chat/send", tok, send, "Idempotency-Key", "k-1"), http.StatusCreated)

	w := c.do(http.MethodPost, "/api/chat/send", tok, send)
	body := c.json(w, http.StatusTooManyRequests)
	if body["code"] != "rate_limited" || w.Header().Get("Retry-After") == "" {
		t.Fatalf("429 envelope=%v retry-after=%q", body, w.Header().Get("Retry-After"))
	}

	w = c.do(http.MethodPost, "/api/chat/send", tok, send, "Idempotency-Key", "k-1")
	replay := c.json(w, http.StatusOK)
	if w.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("missing Idempotent-Replay header")
	}
	id := func(m map[string]any) any { return m["assistant_message"].(map[string]any)["id"] }
	if id(replay) != id(first) {
		t.Fatalf("replay id=%v first id=%v", id(replay), id(first))
	}
}

func TestRegisterRoutes_CORSAllowAll_And_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = nil
	cfg.SwaggerEnabled = true
	c := client{t, newServer(t, cfg)}

	w := c.do(http.MethodGet, "/health", "", nil, "Origin", "http://anywhere.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = c.do(http.MethodGet, "/swagger/index.html", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("swagger status=%d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
