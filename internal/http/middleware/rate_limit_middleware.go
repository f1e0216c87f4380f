package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/altairlabs/gatekeep/internal/http/response"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/security"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int64
	ResetAt    time.Time
}

// RateLimitPolicy is a fixed-window budget: at most Limit admissions per
// Window per key.
type RateLimitPolicy struct {
	Limit  int64
	Window time.Duration
}

func (p RateLimitPolicy) normalize() RateLimitPolicy {
	if p.Limit <= 0 {
		p.Limit = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// windowBucket floors now onto the policy window so every caller lands in
// the same bucket regardless of arrival order.
func windowBucket(now time.Time, window time.Duration) (bucket int64, resetAt time.Time) {
	bucket = now.UnixNano() / int64(window)
	resetAt = time.Unix(0, (bucket+1)*int64(window))
	return bucket, resetAt
}

type localWindow struct {
	bucket int64
	count  int64
}

// LocalFixedWindowLimiter is the in-process fallback for deployments and
// tests without a cache tier. Not shared across replicas.
type LocalFixedWindowLimiter struct {
	mu    sync.Mutex
	store map[string]*localWindow
}

func NewLocalFixedWindowLimiter() *LocalFixedWindowLimiter {
	return &LocalFixedWindowLimiter{store: make(map[string]*localWindow)}
}

func (l *LocalFixedWindowLimiter) Allow(_ context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = policy.normalize()
	now := time.Now()
	bucket, resetAt := windowBucket(now, policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.store[key]
	if !ok || state.bucket != bucket {
		state = &localWindow{bucket: bucket}
		l.store[key] = state
	}
	state.count++
	return decide(state.count, policy, now, resetAt), nil
}

func decide(count int64, policy RateLimitPolicy, now time.Time, resetAt time.Time) Decision {
	if count <= policy.Limit {
		return Decision{Allowed: true, Remaining: policy.Limit - count, ResetAt: resetAt}
	}
	retry := resetAt.Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retry, Remaining: 0, ResetAt: resetAt}
}

// RateLimiter is the HTTP admission middleware around a Limiter.
type RateLimiter struct {
	limiter Limiter
	policy  RateLimitPolicy
	mode    FailureMode
	scope   string
	keyFunc func(r *http.Request) string
}

func NewRateLimiter(limiter Limiter, policy RateLimitPolicy, mode FailureMode, scope string, keyFunc func(r *http.Request) string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  policy.normalize(),
		mode:    mode,
		scope:   scope,
		keyFunc: keyFunc,
	}
}

// Check runs one admission decision for callers outside the HTTP chain,
// such as background workers admitting on behalf of a user.
func (rl *RateLimiter) Check(ctx context.Context, identity string) (Decision, error) {
	return rl.limiter.Allow(ctx, identity, rl.policy)
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}
			decision, err := rl.limiter.Allow(r.Context(), key, rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error", string(rl.mode))
				if rl.mode == FailOpen {
					slog.Warn("rate limiter backend unavailable, allowing request",
						"scope", rl.scope,
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				writeRateLimitHeaders(w.Header(), rl.policy, Decision{ResetAt: time.Now().Add(rl.policy.Window)})
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.Window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.policy, decision)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny", string(rl.mode))
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow", string(rl.mode))
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectOrIPKeyFunc keys authenticated traffic by token subject and falls
// back to client IP for anonymous requests.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr == nil {
			return clientIPKey(r)
		}
		raw := bearerToken(r)
		if raw == "" {
			return clientIPKey(r)
		}
		claims, err := jwtMgr.ParseAccessToken(raw)
		if err != nil || claims.Subject == "" {
			return clientIPKey(r)
		}
		return "sub:" + claims.Subject
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}

func writeRateLimitHeaders(h http.Header, policy RateLimitPolicy, decision Decision) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", policy.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	resetAt := decision.ResetAt
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}
