package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

func TestLocalFixedWindowLimiterEnforcesLimit(t *testing.T) {
	limiter := NewLocalFixedWindowLimiter()
	policy := RateLimitPolicy{Limit: 5, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "actor", policy)
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d within the limit must be allowed", i+1)
		}
		if want := int64(5 - i - 1); decision.Remaining != want {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, want, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(ctx, "actor", policy)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("request over the limit must be denied")
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("denied decision must carry a retry hint, got %s", decision.RetryAfter)
	}
}

func TestLocalFixedWindowLimiterIsolatesKeys(t *testing.T) {
	limiter := NewLocalFixedWindowLimiter()
	policy := RateLimitPolicy{Limit: 1, Window: time.Minute}
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "a", policy); !d.Allowed {
		t.Fatal("first request for key a must pass")
	}
	if d, _ := limiter.Allow(ctx, "a", policy); d.Allowed {
		t.Fatal("second request for key a must be denied")
	}
	if d, _ := limiter.Allow(ctx, "b", policy); !d.Allowed {
		t.Fatal("key b must have its own budget")
	}
}

func TestLocalFixedWindowLimiterWindowRollover(t *testing.T) {
	limiter := NewLocalFixedWindowLimiter()
	policy := RateLimitPolicy{Limit: 1, Window: 50 * time.Millisecond}
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "actor", policy); !d.Allowed {
		t.Fatal("first request must pass")
	}
	if d, _ := limiter.Allow(ctx, "actor", policy); d.Allowed {
		t.Fatal("second request in the same window must be denied")
	}

	time.Sleep(60 * time.Millisecond)
	if d, _ := limiter.Allow(ctx, "actor", policy); !d.Allowed {
		t.Fatal("budget must reset after the window rolls over")
	}
}

func TestRedisFixedWindowLimiterConcurrentBurstHonorsLimit(t *testing.T) {
	_, client := newRedisClientForTest(t)
	limiter := NewRedisFixedWindowLimiter(client, "test:rl")
	policy := RateLimitPolicy{Limit: 20, Window: 10 * time.Minute}

	const attempts = 100
	var allowed atomic.Int64
	errCh := make(chan error, attempts)
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(context.Background(), "same-actor", policy)
			if err != nil {
				errCh <- err
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("limiter allow failed: %v", err)
	}

	if got := allowed.Load(); got != policy.Limit {
		t.Fatalf("expected exactly %d allowed requests, got %d", policy.Limit, got)
	}

	decision, err := limiter.Allow(context.Background(), "same-actor", policy)
	if err != nil {
		t.Fatalf("final allow call failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected next request after the burst to be limited")
	}
}

func TestRateLimiterMiddlewareSetsHeadersAndDenies(t *testing.T) {
	rl := NewRateLimiter(
		NewLocalFixedWindowLimiter(),
		RateLimitPolicy{Limit: 2, Window: time.Minute},
		FailClosed,
		"test",
		func(*http.Request) string { return "fixed-key" },
	)
	var served atomic.Int64
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing X-RateLimit-Limit header: %v", rec.Header())
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if served.Load() != 2 {
		t.Fatalf("handler must run exactly twice, ran %d times", served.Load())
	}
}

func TestRateLimiterCheckSharesBudgetWithMiddleware(t *testing.T) {
	rl := NewRateLimiter(
		NewLocalFixedWindowLimiter(),
		RateLimitPolicy{Limit: 1, Window: time.Minute},
		FailClosed,
		"test",
		func(*http.Request) string { return "worker-1" },
	)

	decision, err := rl.Check(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("first check must be allowed")
	}

	// The middleware sees the budget the direct check consumed.
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run once the budget is spent")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after direct check spent the budget, got %d", rec.Code)
	}
}

func TestRateLimiterMiddlewareFailOpenOnBackendError(t *testing.T) {
	server, client := newRedisClientForTest(t)
	server.Close() // backend down before the first request

	rl := NewRateLimiter(
		NewRedisFixedWindowLimiter(client, "test:rl"),
		RateLimitPolicy{Limit: 1, Window: time.Minute},
		FailOpen,
		"test",
		func(*http.Request) string { return "actor" },
	)
	var served atomic.Int64
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("fail-open request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if served.Load() != 3 {
		t.Fatalf("all requests must pass under fail-open, served %d", served.Load())
	}
}

func TestRateLimiterMiddlewareFailClosedOnBackendError(t *testing.T) {
	server, client := newRedisClientForTest(t)
	server.Close()

	rl := NewRateLimiter(
		NewRedisFixedWindowLimiter(client, "test:rl"),
		RateLimitPolicy{Limit: 1, Window: time.Minute},
		FailClosed,
		"test",
		func(*http.Request) string { return "actor" },
	)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run under fail-closed with a dead backend")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 under fail-closed, got %d", rec.Code)
	}
}
