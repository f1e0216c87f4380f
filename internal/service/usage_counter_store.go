package service

import (
	"context"
	"sync"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
)

// UsageCounterStore is the low-latency counter tier over the durable usage
// ledger. Increments must be atomic; a read-modify-write would lose updates
// under concurrent recording.
type UsageCounterStore interface {
	Incr(ctx context.Context, userID, periodKey string, requests, computeUnits int64, ttl time.Duration) error
	Get(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error)
}

type NoopUsageCounterStore struct{}

func NewNoopUsageCounterStore() *NoopUsageCounterStore { return &NoopUsageCounterStore{} }

func (NoopUsageCounterStore) Incr(context.Context, string, string, int64, int64, time.Duration) error {
	return nil
}

func (NoopUsageCounterStore) Get(context.Context, string, string) (domain.UsageTotals, error) {
	return domain.UsageTotals{}, nil
}

type InMemoryUsageCounterStore struct {
	mu   sync.Mutex
	data map[string]*domain.UsageTotals
}

func NewInMemoryUsageCounterStore() *InMemoryUsageCounterStore {
	return &InMemoryUsageCounterStore{data: make(map[string]*domain.UsageTotals)}
}

func (s *InMemoryUsageCounterStore) Incr(_ context.Context, userID, periodKey string, requests, computeUnits int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + periodKey
	totals, ok := s.data[key]
	if !ok {
		totals = &domain.UsageTotals{}
		s.data[key] = totals
	}
	totals.Requests += requests
	totals.ComputeUnits += computeUnits
	return nil
}

func (s *InMemoryUsageCounterStore) Get(_ context.Context, userID, periodKey string) (domain.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if totals, ok := s.data[userID+":"+periodKey]; ok {
		return *totals, nil
	}
	return domain.UsageTotals{}, nil
}
