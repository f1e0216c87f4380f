package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/altairlabs/gatekeep/internal/config"
	"github.com/altairlabs/gatekeep/internal/http/handler"
	"github.com/altairlabs/gatekeep/internal/http/middleware"
	"github.com/altairlabs/gatekeep/internal/http/router"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/queue"
	"github.com/altairlabs/gatekeep/internal/repository"
	"github.com/altairlabs/gatekeep/internal/security"
	"github.com/altairlabs/gatekeep/internal/service"
)

// App owns every long-lived resource the server needs. Close order matters:
// HTTP first so in-flight requests drain, then the event dispatcher, then
// stores and telemetry.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	db         *gorm.DB
	redis      *redis.Client
	dispatcher *queue.Dispatcher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, obs *observability.Runtime) (*App, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// With REDIS_ADDR unset the cache tiers degrade to no-ops and rate
	// limiting falls back to per-process windows. Correctness holds either
	// way; the durable stores stay authoritative.
	var (
		redisClient  *redis.Client
		sessionCache service.SessionCacheStore = service.NewNoopSessionCacheStore()
		counters     service.UsageCounterStore = service.NewNoopUsageCounterStore()
		limiter      middleware.Limiter        = middleware.NewLocalFixedWindowLimiter()
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisTimeout,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		})
		sessionCache = service.NewRedisSessionCacheStore(redisClient, "session")
		counters = service.NewRedisUsageCounterStore(redisClient, "usage")
		limiter = middleware.NewRedisFixedWindowLimiter(redisClient, "ratelimit")
	} else {
		logger.WarnContext(ctx, "redis not configured, running without cache tiers and shared rate limits")
	}

	var publisher queue.Publisher = queue.NoopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := queue.NewAMQPPublisher(cfg.AMQPURL, cfg.AuditQueueName)
		if err != nil {
			logger.WarnContext(ctx, "amqp unavailable, domain events will be dropped", "error", err)
		} else {
			publisher = p
		}
	}
	dispatcher := queue.NewDispatcher(publisher, cfg.AuditBuffer, 3)

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	hasher := security.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)

	sessions := service.NewSessionService(sessionRepo, sessionCache, cfg.SessionTTL, cfg.SessionCacheTTL, cfg.SessionNegativeCacheTTL)
	tokens := service.NewTokenService(jwtMgr, userRepo, sessions, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	meter := service.NewUsageMeter(usageRepo, counters, service.DefaultReconciliation, cfg.UsageCounterTTL)
	quota := service.NewQuotaService(subscriptionRepo, paymentRepo, apiKeyRepo, meter, dispatcher)
	auth := service.NewAuthService(userRepo, hasher, tokens, sessions, quota, dispatcher)

	oauthProvider := service.NewGoogleOAuthProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	oauth := service.NewOAuthService(oauthProvider)

	globalLimiter := middleware.NewRateLimiter(
		limiter,
		middleware.RateLimitPolicy{Limit: int64(cfg.RateLimitPerWindow), Window: cfg.RateLimitWindow},
		middleware.FailOpen,
		"api",
		middleware.SubjectOrIPKeyFunc(jwtMgr),
	)
	authLimiter := middleware.NewRateLimiter(
		limiter,
		middleware.RateLimitPolicy{Limit: int64(cfg.RateLimitPerWindow) / 4, Window: cfg.RateLimitWindow},
		middleware.FailOpen,
		"auth",
		nil,
	)

	readiness := []router.ReadinessCheck{
		{Name: "postgres", Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
	}
	if redisClient != nil {
		readiness = append(readiness, router.ReadinessCheck{
			Name: "redis",
			Probe: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, oauth),
		UsageHandler:     handler.NewUsageHandler(meter, quota, cfg.OverageUnitPriceCents),
		BillingHandler:   handler.NewBillingHandler(quota),
		JWTManager:       jwtMgr,
		InternalAPIToken: cfg.InternalAPIToken,
		CORSOrigins:      cfg.CORSOrigins,
		GlobalLimiter:    globalLimiter.Middleware(),
		AuthLimiter:      authLimiter.Middleware(),
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: obs,
		db:            db,
		redis:         redisClient,
		dispatcher:    dispatcher,
	}, nil
}

// Run serves until ctx is canceled, then drains with the given grace period.
func (a *App) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http shutdown", "error", err)
	}
	a.Close(shutdownCtx)
	return nil
}

func (a *App) Close(ctx context.Context) {
	a.dispatcher.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil {
			a.Logger.Error("telemetry shutdown", "error", err)
		}
	}
}
