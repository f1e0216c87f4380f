package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/queue"
	"github.com/altairlabs/gatekeep/internal/repository"
	"github.com/altairlabs/gatekeep/internal/security"

	"github.com/google/uuid"
)

type LoginResult struct {
	User   *domain.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

// VerifiedIdentity is an external-identity assertion whose email ownership
// has already been proven by the provider.
type VerifiedIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

type AuthService struct {
	userRepo   repository.UserRepository
	hasher     *security.PasswordHasher
	tokens     *TokenService
	sessions   *SessionService
	quota      *QuotaService
	dispatcher *queue.Dispatcher
}

func NewAuthService(
	userRepo repository.UserRepository,
	hasher *security.PasswordHasher,
	tokens *TokenService,
	sessions *SessionService,
	quota *QuotaService,
	dispatcher *queue.Dispatcher,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		hasher:     hasher,
		tokens:     tokens,
		sessions:   sessions,
		quota:      quota,
		dispatcher: dispatcher,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, name, ip, userAgent string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrValidation
	}
	if len(password) < 8 {
		return nil, ErrValidation
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
		Status:       domain.UserStatusActive,
		Role:         domain.UserRoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err := s.quota.EnsureFreeSubscription(ctx, user.ID); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Enqueue(queue.Event{
		Type:      queue.EventUserRegistered,
		UserID:    user.ID,
		SessionID: pair.SessionID,
		Meta:      map[string]string{"ip": ip},
	})
	return &LoginResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !s.hasher.Verify(ctx, *user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Suspended() {
		return nil, ErrAccountSuspended
	}

	pair, err := s.tokens.Issue(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Enqueue(queue.Event{
		Type:      queue.EventUserLogin,
		UserID:    user.ID,
		SessionID: pair.SessionID,
		Meta:      map[string]string{"method": "password", "ip": ip},
	})
	return &LoginResult{User: user, Tokens: pair}, nil
}

// OAuthLogin accepts an identity the provider has already verified. A
// first-time identity creates the user (OAuth-only, no credential hash).
func (s *AuthService) OAuthLogin(ctx context.Context, identity VerifiedIdentity, ip, userAgent string) (*LoginResult, error) {
	if identity.Provider == "" || identity.Subject == "" || identity.Email == "" {
		return nil, ErrValidation
	}

	user, err := s.userRepo.FindByOAuthIdentity(ctx, identity.Provider, identity.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		user = &domain.User{
			ID:            uuid.NewString(),
			Email:         normalizeEmail(identity.Email),
			Name:          identity.Name,
			Status:        domain.UserStatusActive,
			Role:          domain.UserRoleUser,
			OAuthProvider: &identity.Provider,
			OAuthSubject:  &identity.Subject,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return nil, ErrEmailTaken
			}
			return nil, err
		}
		if err := s.quota.EnsureFreeSubscription(ctx, user.ID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if user.Suspended() {
		return nil, ErrAccountSuspended
	}

	pair, err := s.tokens.Issue(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Enqueue(queue.Event{
		Type:      queue.EventUserLogin,
		UserID:    user.ID,
		SessionID: pair.SessionID,
		Meta:      map[string]string{"method": "oauth", "provider": identity.Provider, "ip": ip},
	})
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh mints a new access token against a live session. A reuse
// detection is surfaced to callers and also published for downstream
// alerting, since it usually means a stolen refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (string, error) {
	access, err := s.tokens.Refresh(ctx, refreshToken, ip, userAgent)
	if errors.Is(err, ErrRefreshReuseDetected) {
		s.dispatcher.Enqueue(queue.Event{Type: queue.EventRefreshReuse, Meta: map[string]string{"ip": ip}})
	}
	return access, err
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Deactivate(ctx, sessionID, "user_logout"); err != nil {
		return err
	}
	s.dispatcher.Enqueue(queue.Event{Type: queue.EventUserLogout, SessionID: sessionID})
	return nil
}

// ChangePassword rehashes and revokes every session for the user, so a
// credential rotation invalidates any token a thief may hold.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrValidation
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil || !s.hasher.Verify(ctx, *user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	revoked, err := s.sessions.DeactivateAllForUser(ctx, userID, "password_changed")
	if err != nil {
		return err
	}
	s.dispatcher.Enqueue(queue.Event{
		Type:   queue.EventPasswordChanged,
		UserID: userID,
		Meta:   map[string]string{"sessions_revoked": strconv.FormatInt(revoked, 10)},
	})
	return nil
}

// Suspend deactivates the account and all of its sessions. Administrative
// path only.
func (s *AuthService) Suspend(ctx context.Context, userID string) error {
	if err := s.userRepo.SetStatus(ctx, userID, domain.UserStatusSuspended); err != nil {
		return err
	}
	if _, err := s.sessions.DeactivateAllForUser(ctx, userID, "account_suspended"); err != nil {
		return err
	}
	s.dispatcher.Enqueue(queue.Event{Type: queue.EventSessionsRevoked, UserID: userID, Meta: map[string]string{"reason": "suspended"}})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
