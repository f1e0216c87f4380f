package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/altairlabs/gatekeep/internal/http/handler"
	"github.com/altairlabs/gatekeep/internal/http/middleware"
	"github.com/altairlabs/gatekeep/internal/http/router"
	"github.com/altairlabs/gatekeep/internal/queue"
	"github.com/altairlabs/gatekeep/internal/repository"
	"github.com/altairlabs/gatekeep/internal/security"
	"github.com/altairlabs/gatekeep/internal/service"
)

const testInternalToken = "itest-internal-token"

type testStack struct {
	server      *httptest.Server
	jwtMgr      *security.JWTManager
	paymentRepo repository.PaymentRepository
	redis       *miniredis.Miniredis
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	jwtMgr := security.NewJWTManager("gatekeep-itest", "gatekeep-api", "access-secret", "refresh-secret")
	hasher := security.NewPasswordHasher(bcrypt.MinCost, 4)

	dispatcher := queue.NewDispatcher(queue.NoopPublisher{}, 64, 1)
	t.Cleanup(func() { _ = dispatcher.Close() })

	sessionCache := service.NewRedisSessionCacheStore(redisClient, "itest:session")
	sessions := service.NewSessionService(sessionRepo, sessionCache, 24*time.Hour, 5*time.Minute, 30*time.Second)
	tokens := service.NewTokenService(jwtMgr, userRepo, sessions, 15*time.Minute, time.Hour)

	counters := service.NewRedisUsageCounterStore(redisClient, "itest:usage")
	meter := service.NewUsageMeter(usageRepo, counters, service.DefaultReconciliation, time.Hour)
	quota := service.NewQuotaService(subRepo, paymentRepo, apiKeyRepo, meter, dispatcher)
	auth := service.NewAuthService(userRepo, hasher, tokens, sessions, quota, dispatcher)
	oauth := service.NewOAuthService(service.NewGoogleOAuthProvider("client", "secret", "http://localhost/cb"))

	limiter := middleware.NewRedisFixedWindowLimiter(redisClient, "itest:rl")
	generous := middleware.NewRateLimiter(
		limiter,
		middleware.RateLimitPolicy{Limit: 10_000, Window: time.Minute},
		middleware.FailOpen,
		"itest",
		nil,
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, oauth),
		UsageHandler:     handler.NewUsageHandler(meter, quota, 2),
		BillingHandler:   handler.NewBillingHandler(quota),
		JWTManager:       jwtMgr,
		InternalAPIToken: testInternalToken,
		GlobalLimiter:    generous.Middleware(),
		AuthLimiter:      generous.Middleware(),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &testStack{
		server:      server,
		jwtMgr:      jwtMgr,
		paymentRepo: paymentRepo,
		redis:       mr,
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, method, url, token string, body any, headers map[string]string) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, parsed
}

type tokenPayload struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		SessionID    string `json:"session_id"`
	} `json:"tokens"`
}

func register(t *testing.T, stack *testStack, email, password string) tokenPayload {
	t.Helper()
	status, resp := doJSON(t, http.MethodPost, stack.server.URL+"/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
		"name":     "Integration User",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%+v)", status, resp.Error)
	}
	var payload tokenPayload
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("unmarshal register payload: %v", err)
	}
	return payload
}
