package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediease/mediease/internal/config"
	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		SessionSecret:  "test-secret-test-secret-test-secret",
		SessionTTL:     time.Hour,
		SessionCookie:  "mediease_session",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestEcho(t *testing.T) (*echo.Echo, *auth.MemorySessionStore, *auth.TokenIssuer) {
	t.Helper()
	cfg := testConfig()
	store := auth.NewMemorySessionStore()
	tokens := auth.NewTokenIssuer([]byte(cfg.SessionSecret), tokenIssuer, cfg.SessionTTL)
	e, api := newEcho(cfg, zerolog.Nop(), store, tokens)
	api.GET("/whoami", func(c echo.Context) error {
		p := auth.CurrentPrincipal(c)
		return c.JSON(http.StatusOK, map[string]interface{}{"user_id": p.UserID, "role": p.Role})
	})
	return e, store, tokens
}

func TestHealth(t *testing.T) {
	e, _, _ := newTestEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestMetricsIsPublic(t *testing.T) {
	e, _, _ := newTestEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	e, _, _ := newTestEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == nil {
		t.Errorf("expected a json error body, got %s", rec.Body.String())
	}
}

func TestAPIWithSession(t *testing.T) {
	e, store, tokens := newTestEcho(t)
	sess := auth.NewSession(20, auth.RoleDoctor, "Dr. Lee", "lee@example.com", time.Now(), time.Hour)
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	token, err := tokens.Issue(sess)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["user_id"] != float64(20) || body["role"] != "doctor" {
		t.Errorf("unexpected principal %v", body)
	}
}

func TestUnknownRouteWithSessionIs404(t *testing.T) {
	e, store, tokens := newTestEcho(t)
	sess := auth.NewSession(10, auth.RolePatient, "Ada", "ada@example.com", time.Now(), time.Hour)
	_ = store.Save(context.Background(), sess)
	token, _ := tokens.Issue(sess)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

type memActivityRepo struct {
	mu      sync.Mutex
	entries []*activity.Entry
}

func (r *memActivityRepo) Append(_ context.Context, e *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memActivityRepo) List(context.Context, activity.Filter, int, int) ([]*activity.Entry, int, error) {
	return nil, 0, nil
}

func TestHandlerPanicIs500AndServerKeepsServing(t *testing.T) {
	e, store, tokens := newTestEcho(t)
	e.GET("/api/v1/boom", func(c echo.Context) error {
		panic("nil slot")
	})
	sess := auth.NewSession(10, auth.RolePatient, "Ada", "ada@example.com", time.Now(), time.Hour)
	_ = store.Save(context.Background(), sess)
	token, _ := tokens.Issue(sess)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected server to keep serving, got %d", rec.Code)
	}
}

func TestActivityEntriesCarryClientIP(t *testing.T) {
	e, _, _ := newTestEcho(t)
	repo := &memActivityRepo{}
	recorder := activity.NewRecorder(repo, zerolog.Nop())
	e.POST("/api/v1/auth/login", func(c echo.Context) error {
		recorder.Record(c.Request().Context(), 0, activity.ActionUserLogin, "attempt")
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.entries) != 1 || repo.entries[0].IPAddress != "203.0.113.7" {
		t.Errorf("expected one entry from 203.0.113.7, got %+v", repo.entries)
	}
}
