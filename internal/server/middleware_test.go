package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bobmcallan/tickermetrics/internal/common"
)

func signTestToken(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dashboard",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerTokenMiddleware_OpenWithoutSecret(t *testing.T) {
	cfg := common.NewDefaultConfig()
	handler := bearerTokenMiddleware(cfg)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics?ticker=AAPL", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestBearerTokenMiddleware_RequiresToken(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	handler := bearerTokenMiddleware(cfg)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics?ticker=AAPL", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestBearerTokenMiddleware_ValidToken(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	handler := bearerTokenMiddleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/metrics?ticker=AAPL", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "test-secret", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestBearerTokenMiddleware_RejectsBadTokens(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	handler := bearerTokenMiddleware(cfg)(okHandler())

	tokens := map[string]string{
		"wrong secret": signTestToken(t, "other-secret", time.Now().Add(time.Hour)),
		"expired":      signTestToken(t, "test-secret", time.Now().Add(-time.Hour)),
		"garbage":      "not.a.token",
	}
	for name, token := range tokens {
		req := httptest.NewRequest(http.MethodGet, "/api/cache", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rr.Code)
		}
	}
}

func TestBearerTokenMiddleware_HealthIsPublic(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	handler := bearerTokenMiddleware(cfg)(okHandler())

	for _, path := range []string{"/api/health", "/api/version"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = correlationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "abc123" || rr.Header().Get("X-Correlation-ID") != "abc123" {
		t.Errorf("expected provided id to propagate, got ctx=%q header=%q", seen, rr.Header().Get("X-Correlation-ID"))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if len(seen) != 8 || rr.Header().Get("X-Correlation-ID") != seen {
		t.Errorf("expected a generated 8 char id, got %q", seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(common.NewSilentLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	handler := corsMiddleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/metrics", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS origin header")
	}
}
