package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hyperengineering/fitsync/internal/identity"
)

const testToken = "local-secret-token-12345"

// okHandler records whether it was reached.
func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}), &called
}

// captureLogs swaps the default logger for one writing JSON into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + testToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-token", http.StatusUnauthorized},
		{"no bearer prefix", testToken, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"whitespace token", "Bearer    ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = captureLogs(t)
			handler, called := okHandler()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/workouts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(testToken)(handler).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if *called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", *called)
			}
		})
	}
}

func TestAuthMiddleware_EmptyConfiguredTokenRejectsAll(t *testing.T) {
	_ = captureLogs(t)
	handler, called := okHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workouts", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()

	AuthMiddleware("")(handler).ServeHTTP(w, req)

	if *called || w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, called = %v; an unset token must not open the API", w.Code, *called)
	}
}

func TestAuthMiddleware_ResponseFormat_RFC7807(t *testing.T) {
	logs := captureLogs(t)
	handler, _ := okHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workouts", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()

	AuthMiddleware(testToken)(handler).ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %v, want application/problem+json", ct)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal response as RFC 7807: %v", err)
	}
	if p.Type != "https://fitsync.dev/errors/unauthorized" || p.Status != 401 {
		t.Errorf("problem = %+v", p)
	}
	if p.Instance != "/api/v1/workouts" {
		t.Errorf("instance = %v, want /api/v1/workouts", p.Instance)
	}

	// The expected token never leaves the process
	if strings.Contains(w.Body.String(), testToken) || strings.Contains(logs.String(), testToken) {
		t.Error("expected token leaked into response or logs")
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"valid token", "Bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"no bearer prefix", "abc123", ""},
		{"lowercase bearer", "bearer abc123", ""},
		{"basic auth", "Basic abc123", ""},
		{"token with spaces trimmed", "Bearer  abc123 ", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := extractBearerToken(req); got != tt.expected {
				t.Errorf("extractBearerToken() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("abc123", "abc123") {
		t.Error("equal strings should match")
	}
	for _, pair := range [][2]string{{"abc123", "xyz789"}, {"abc", "abcdef"}, {"abc", ""}} {
		if constantTimeEqual(pair[0], pair[1]) {
			t.Errorf("constantTimeEqual(%q, %q) = true", pair[0], pair[1])
		}
	}
}

func TestIdentityMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MustUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	// Given: A signed-in user
	w := httptest.NewRecorder()
	IdentityMiddleware(identity.NewStatic("alice", "tok"))(inner).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	// Then: The handler sees their id
	if w.Code != http.StatusNoContent || seen != "alice" {
		t.Errorf("status = %d, user = %q", w.Code, seen)
	}

	// When: Nobody is signed in
	seen = ""
	w = httptest.NewRecorder()
	IdentityMiddleware(identity.NewStatic("", ""))(inner).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	// Then: The request stops with 401
	if w.Code != http.StatusUnauthorized || seen != "" {
		t.Errorf("signed out: status = %d, user = %q", w.Code, seen)
	}
}

func TestDeleteRateLimiter(t *testing.T) {
	handler, _ := okHandler()
	limited := NewDeleteRateLimiter(2, time.Hour).Middleware(handler)

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/workouts/w1", nil))
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third delete = %d, want 429", codes[2])
	}
}

func TestHealthBypassesAuth_ViaRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(testToken))
			r.Post("/sync", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})
	})
	_ = captureLogs(t)

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sync", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/sync", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s (token %q): status = %d, want %d", tt.method, tt.path, tt.token, w.Code, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logs := captureLogs(t)
	secret := "super-secret-database-password-12345"
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic(secret) })

	w := httptest.NewRecorder()
	RecoveryMiddleware(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workouts", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Type != "https://fitsync.dev/errors/internal-error" || p.Detail != "Internal Server Error" {
		t.Errorf("problem = %+v", p)
	}
	if strings.Contains(w.Body.String(), secret) {
		t.Error("response body contains the panic message")
	}
	if !strings.Contains(logs.String(), "panic recovered") || !strings.Contains(logs.String(), secret) {
		t.Error("panic should be logged with its message")
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	handler, _ := okHandler()
	w := httptest.NewRecorder()
	RecoveryMiddleware(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestGetRequestID(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("GetRequestID without middleware = %q, want empty", id)
	}

	var got string
	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Get("/test", func(w http.ResponseWriter, r *http.Request) { got = GetRequestID(r.Context()) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	if got == "" {
		t.Error("expected chi-generated request id")
	}
}

func TestLogLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{200, slog.LevelInfo},
		{204, slog.LevelInfo},
		{304, slog.LevelInfo},
		{400, slog.LevelWarn},
		{429, slog.LevelWarn},
		{499, slog.LevelWarn},
		{500, slog.LevelError},
		{503, slog.LevelError},
	}
	for _, tt := range tests {
		if got := logLevelForStatus(tt.status); got != tt.want {
			t.Errorf("logLevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	logs := captureLogs(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) })

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(LoggingMiddleware)
	router.Get("/test", inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.100:54321"
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log as JSON: %v (%s)", err, logs.String())
	}
	if entry["msg"] != "request completed" || entry["level"] != "WARN" {
		t.Errorf("msg/level = %v/%v", entry["msg"], entry["level"])
	}
	if entry["remote_addr"] != "192.168.1.100:54321" {
		t.Errorf("remote_addr = %v", entry["remote_addr"])
	}
	for _, field := range []string{"request_id", "method", "path", "status", "duration_ms", "component"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing field %s", field)
		}
	}
	for key := range entry {
		if key != strings.ToLower(key) || strings.Contains(key, "-") {
			t.Errorf("field %q is not snake_case", key)
		}
	}
	if strings.Contains(logs.String(), testToken) {
		t.Error("log output contains the bearer token")
	}
}
