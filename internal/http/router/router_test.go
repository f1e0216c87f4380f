package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/altairlabs/gatekeep/internal/http/handler"
	"github.com/altairlabs/gatekeep/internal/security"
)

func newRouterForTest(readiness []ReadinessCheck) http.Handler {
	jwtMgr := security.NewJWTManager("gatekeep-test", "gatekeep-api", "access-secret", "refresh-secret")
	return NewRouter(Dependencies{
		AuthHandler:      &handler.AuthHandler{},
		UsageHandler:     &handler.UsageHandler{},
		BillingHandler:   &handler.BillingHandler{},
		JWTManager:       jwtMgr,
		InternalAPIToken: "test-internal-token",
		Readiness:        readiness,
	})
}

func TestRouterHealthLive(t *testing.T) {
	h := newRouterForTest(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health/live, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected live body: %s", rec.Body.String())
	}
}

func TestRouterHealthReadyReportsFailingDependency(t *testing.T) {
	h := newRouterForTest([]ReadinessCheck{
		{Name: "postgres", Probe: func(context.Context) error { return nil }},
		{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when a dependency is down, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("ready body must name the failing check: %s", rec.Body.String())
	}
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	h := newRouterForTest(nil)

	for _, path := range []string{"/api/v1/usage", "/api/v1/quota/requests", "/api/v1/quota/api-keys"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 from %s without a token, got %d", path, rec.Code)
		}
	}
}

func TestRouterInternalRoutesRequireToken(t *testing.T) {
	h := newRouterForTest(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/internal/billing/upgrade", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without internal token, got %d", rec.Code)
	}
}
