package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/altairlabs/gatekeep/internal/http/handler"
	"github.com/altairlabs/gatekeep/internal/http/middleware"
	"github.com/altairlabs/gatekeep/internal/http/response"
	"github.com/altairlabs/gatekeep/internal/security"
)

// ReadinessCheck probes one dependency; a non-nil error marks the service
// not ready.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UsageHandler   *handler.UsageHandler
	BillingHandler *handler.BillingHandler

	JWTManager       *security.JWTManager
	InternalAPIToken string
	CORSOrigins      []string

	// GlobalLimiter and AuthLimiter default to in-process fixed windows
	// when nil, which keeps router tests free of Redis.
	GlobalLimiter func(http.Handler) http.Handler
	AuthLimiter   func(http.Handler) http.Handler

	Readiness      []ReadinessCheck
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	globalLimiter := dep.GlobalLimiter
	if globalLimiter == nil {
		globalLimiter = defaultLimiter(dep.JWTManager, "api", 120)
	}
	authLimiter := dep.AuthLimiter
	if authLimiter == nil {
		authLimiter = defaultLimiter(nil, "auth", 20)
	}
	r.Use(globalLimiter)

	requireAuth := middleware.RequireAuth(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := make([]map[string]string, 0, len(dep.Readiness))
		ready := true
		for _, c := range dep.Readiness {
			status := "ok"
			if err := c.Probe(r.Context()); err != nil {
				status = err.Error()
				ready = false
			}
			checks = append(checks, map[string]string{"name": c.Name, "status": status})
		}
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": checks})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Get("/google/login", dep.AuthHandler.GoogleLogin)
			r.With(authLimiter).Get("/google/callback", dep.AuthHandler.GoogleCallback)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(requireAuth).Post("/logout", dep.AuthHandler.Logout)
			r.With(requireAuth, authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/usage/record", dep.UsageHandler.Record)
			r.Get("/usage", dep.UsageHandler.Current)
			r.Get("/quota/requests", dep.UsageHandler.CheckRequestQuota)
			r.Get("/quota/api-keys", dep.UsageHandler.CheckAPIKeyQuota)
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.RequireInternalToken(dep.InternalAPIToken))
			r.Post("/billing/upgrade", dep.BillingHandler.CompleteUpgrade)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func defaultLimiter(jwtMgr *security.JWTManager, scope string, perMinute int64) func(http.Handler) http.Handler {
	rl := middleware.NewRateLimiter(
		middleware.NewLocalFixedWindowLimiter(),
		middleware.RateLimitPolicy{Limit: perMinute, Window: time.Minute},
		middleware.FailOpen,
		scope,
		middleware.SubjectOrIPKeyFunc(jwtMgr),
	)
	return rl.Middleware()
}
