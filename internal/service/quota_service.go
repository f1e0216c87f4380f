package service

import (
	"context"
	"errors"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/queue"
	"github.com/altairlabs/gatekeep/internal/repository"
)

// QuotaService combines plan limits with metered usage. Unlike the rate
// limiter it fails closed: when the truth is unavailable the operation is
// denied, because these answers feed billing.
type QuotaService struct {
	subscriptionRepo repository.SubscriptionRepository
	paymentRepo      repository.PaymentRepository
	apiKeyRepo       repository.APIKeyRepository
	meter            *UsageMeter
	dispatcher       *queue.Dispatcher
}

func NewQuotaService(
	subscriptionRepo repository.SubscriptionRepository,
	paymentRepo repository.PaymentRepository,
	apiKeyRepo repository.APIKeyRepository,
	meter *UsageMeter,
	dispatcher *queue.Dispatcher,
) *QuotaService {
	return &QuotaService{
		subscriptionRepo: subscriptionRepo,
		paymentRepo:      paymentRepo,
		apiKeyRepo:       apiKeyRepo,
		meter:            meter,
		dispatcher:       dispatcher,
	}
}

func (s *QuotaService) CanCreateAPIKey(ctx context.Context, userID string) (bool, error) {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub.APIKeyLimit == domain.UnlimitedLimit {
		observability.RecordQuotaDecision(ctx, "api_key", "allow")
		return true, nil
	}
	count, err := s.apiKeyRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := count < sub.APIKeyLimit
	s.recordDecision(ctx, "api_key", allowed, userID)
	return allowed, nil
}

func (s *QuotaService) CanAcceptRequests(ctx context.Context, userID string, incoming int64) (bool, error) {
	if incoming < 0 {
		return false, ErrValidation
	}
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub.RequestLimit == domain.UnlimitedLimit {
		observability.RecordQuotaDecision(ctx, "requests", "allow")
		return true, nil
	}
	used, err := s.meter.BillableUsage(ctx, userID, domain.PeriodKey(time.Now()))
	if err != nil {
		return false, err
	}
	allowed := used.Requests+incoming <= sub.RequestLimit
	s.recordDecision(ctx, "requests", allowed, userID)
	return allowed, nil
}

// CompleteUpgrade replaces the user's subscription after verifying the
// payment. This is an internal/administrative operation: calling it without
// a completed payment row is a caller bug, not a user-facing flow.
func (s *QuotaService) CompleteUpgrade(ctx context.Context, userID string, plan domain.PlanType, paymentID string) error {
	if !plan.Valid() {
		return ErrValidation
	}
	payment, err := s.paymentRepo.FindByIDForUser(ctx, paymentID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return ErrPaymentNotVerified
		}
		return err
	}
	if payment.Status != domain.PaymentCompleted {
		return ErrPaymentNotVerified
	}

	requests, apiKeys, ratePerMin := domain.PlanLimits(plan)
	now := time.Now().UTC()
	sub := &domain.Subscription{
		UserID:          userID,
		Plan:            plan,
		Status:          domain.SubscriptionActive,
		PeriodStart:     now,
		PeriodEnd:       now.AddDate(0, 1, 0),
		RequestLimit:    requests,
		APIKeyLimit:     apiKeys,
		RateLimitPerMin: ratePerMin,
	}
	if err := s.subscriptionRepo.Upsert(ctx, sub); err != nil {
		return err
	}
	s.dispatcher.Enqueue(queue.Event{
		Type:   queue.EventPlanUpgraded,
		UserID: userID,
		Meta:   map[string]string{"plan": string(plan), "payment_id": paymentID},
	})
	return nil
}

// EnsureFreeSubscription provisions the free tier at registration. Upsert
// keeps it idempotent for retried registrations.
func (s *QuotaService) EnsureFreeSubscription(ctx context.Context, userID string) error {
	if _, err := s.subscriptionRepo.FindByUserID(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return err
	}
	requests, apiKeys, ratePerMin := domain.PlanLimits(domain.PlanFree)
	now := time.Now().UTC()
	return s.subscriptionRepo.Upsert(ctx, &domain.Subscription{
		UserID:          userID,
		Plan:            domain.PlanFree,
		Status:          domain.SubscriptionActive,
		PeriodStart:     now,
		PeriodEnd:       now.AddDate(0, 1, 0),
		RequestLimit:    requests,
		APIKeyLimit:     apiKeys,
		RateLimitPerMin: ratePerMin,
	})
}

// PlanFor returns the subscription row regardless of entitlement status, for
// display surfaces that report plan details alongside usage. A user without a
// row reads as free tier here; enforcement paths keep failing closed through
// subscription().
func (s *QuotaService) PlanFor(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		requests, apiKeys, ratePerMin := domain.PlanLimits(domain.PlanFree)
		return &domain.Subscription{
			UserID:          userID,
			Plan:            domain.PlanFree,
			Status:          domain.SubscriptionActive,
			RequestLimit:    requests,
			APIKeyLimit:     apiKeys,
			RateLimitPerMin: ratePerMin,
		}, nil
	}
	return sub, err
}

func (s *QuotaService) subscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.Status.Entitled() {
		return nil, ErrQuotaExceeded
	}
	return sub, nil
}

func (s *QuotaService) recordDecision(ctx context.Context, check string, allowed bool, userID string) {
	outcome := "allow"
	if !allowed {
		outcome = "deny"
		s.dispatcher.Enqueue(queue.Event{
			Type:   queue.EventQuotaDenied,
			UserID: userID,
			Meta:   map[string]string{"check": check},
		})
	}
	observability.RecordQuotaDecision(ctx, check, outcome)
}
