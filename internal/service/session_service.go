package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/repository"

	"github.com/google/uuid"
)

type SessionService struct {
	sessionRepo repository.SessionRepository
	cache       SessionCacheStore
	sessionTTL  time.Duration
	cacheTTL    time.Duration
	negativeTTL time.Duration
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	cache SessionCacheStore,
	sessionTTL, cacheTTL, negativeTTL time.Duration,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		cache:       cache,
		sessionTTL:  sessionTTL,
		cacheTTL:    cacheTTL,
		negativeTTL: negativeTTL,
	}
}

// Create allocates a new active session with a fresh refresh-token id.
// Writes go straight through to the durable store; the cache is populated
// lazily on the first validate.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		RefreshTokenID: uuid.NewString(),
		UserAgent:      userAgent,
		IP:             ip,
		ExpiresAt:      now.Add(s.sessionTTL),
		LastActivityAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Validate is the cache-aside read path. The cache tier is best-effort: any
// cache error degrades to a durable read with a warning, never a failure.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.SessionProjection, error) {
	now := time.Now().UTC()

	projection, found, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		slog.WarnContext(ctx, "session cache read failed, degraded to durable store", "error", err)
		observability.RecordCacheDegraded(ctx, "session_cache")
	} else if found {
		if projection == nil {
			return nil, nil
		}
		if now.Before(projection.ExpiresAt) {
			return projection, nil
		}
		// stale positive entry; fall through to the durable store
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.cacheNegative(ctx, sessionID)
			return nil, nil
		}
		return nil, err
	}
	if !session.Active(now) {
		s.cacheNegative(ctx, sessionID)
		return nil, nil
	}

	p := session.Projection()
	if err := s.cache.Set(ctx, p, s.positiveTTL(session, now)); err != nil {
		slog.WarnContext(ctx, "session cache write failed", "error", err)
		observability.RecordCacheDegraded(ctx, "session_cache")
	}
	return p, nil
}

// Deactivate revokes durably, then evicts. The durable write is the
// authority; eviction just shortens the stale window.
func (s *SessionService) Deactivate(ctx context.Context, sessionID, reason string) error {
	if _, err := s.sessionRepo.RevokeByID(ctx, sessionID, reason); err != nil {
		return err
	}
	if err := s.cache.Evict(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "session cache evict failed", "session_id", sessionID, "error", err)
		observability.RecordCacheDegraded(ctx, "session_cache")
	}
	return nil
}

// DeactivateAllForUser bulk-revokes durably first and only then evicts cache
// entries, so a partial eviction can never resurrect a revoked session
// beyond its cache TTL.
func (s *SessionService) DeactivateAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	active, err := s.sessionRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked, err := s.sessionRepo.RevokeByUserID(ctx, userID, reason)
	if err != nil {
		return revoked, err
	}
	for _, session := range active {
		if err := s.cache.Evict(ctx, session.ID); err != nil {
			slog.WarnContext(ctx, "session cache evict failed", "session_id", session.ID, "error", err)
			observability.RecordCacheDegraded(ctx, "session_cache")
		}
	}
	return revoked, nil
}

func (s *SessionService) Touch(ctx context.Context, sessionID, ip, userAgent string) error {
	return s.sessionRepo.Touch(ctx, sessionID, ip, userAgent, time.Now().UTC())
}

func (s *SessionService) cacheNegative(ctx context.Context, sessionID string) {
	if err := s.cache.SetNegative(ctx, sessionID, s.negativeTTL); err != nil {
		slog.WarnContext(ctx, "session negative cache write failed", "error", err)
		observability.RecordCacheDegraded(ctx, "session_cache")
	}
}

// positiveTTL keeps cache entries strictly inside the session's remaining
// life so an entry can never outlive its row.
func (s *SessionService) positiveTTL(session *domain.Session, now time.Time) time.Duration {
	remaining := session.ExpiresAt.Sub(now)
	ttl := s.cacheTTL
	if limit := remaining * 3 / 4; limit < ttl {
		ttl = limit
	}
	return ttl
}
