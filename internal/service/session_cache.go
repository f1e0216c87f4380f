package service

import (
	"context"
	"sync"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
)

// SessionCacheStore is the cache-aside layer in front of the durable session
// rows. Negative entries absorb repeated lookups of dead session ids so they
// do not stampede the database.
type SessionCacheStore interface {
	// Get returns (projection, found). A negative entry returns (nil, true).
	Get(ctx context.Context, sessionID string) (*domain.SessionProjection, bool, error)
	Set(ctx context.Context, projection *domain.SessionProjection, ttl time.Duration) error
	SetNegative(ctx context.Context, sessionID string, ttl time.Duration) error
	Evict(ctx context.Context, sessionID string) error
}

type NoopSessionCacheStore struct{}

func NewNoopSessionCacheStore() *NoopSessionCacheStore { return &NoopSessionCacheStore{} }

func (s *NoopSessionCacheStore) Get(context.Context, string) (*domain.SessionProjection, bool, error) {
	return nil, false, nil
}

func (s *NoopSessionCacheStore) Set(context.Context, *domain.SessionProjection, time.Duration) error {
	return nil
}

func (s *NoopSessionCacheStore) SetNegative(context.Context, string, time.Duration) error {
	return nil
}

func (s *NoopSessionCacheStore) Evict(context.Context, string) error { return nil }

type sessionCacheEntry struct {
	projection *domain.SessionProjection // nil marks a negative entry
	expiresAt  time.Time
}

type InMemorySessionCacheStore struct {
	mu   sync.RWMutex
	data map[string]sessionCacheEntry
}

func NewInMemorySessionCacheStore() *InMemorySessionCacheStore {
	return &InMemorySessionCacheStore{data: make(map[string]sessionCacheEntry)}
}

func (s *InMemorySessionCacheStore) Get(_ context.Context, sessionID string) (*domain.SessionProjection, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.data[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, sessionID)
		s.mu.Unlock()
		return nil, false, nil
	}
	if entry.projection == nil {
		return nil, true, nil
	}
	p := *entry.projection
	return &p, true, nil
}

func (s *InMemorySessionCacheStore) Set(_ context.Context, projection *domain.SessionProjection, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	p := *projection
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[projection.ID] = sessionCacheEntry{projection: &p, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *InMemorySessionCacheStore) SetNegative(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = sessionCacheEntry{projection: nil, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *InMemorySessionCacheStore) Evict(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}
