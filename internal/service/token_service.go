package service

import (
	"context"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/repository"
	"github.com/altairlabs/gatekeep/internal/security"
)

// TokenPair is what every session-creating flow hands back to the caller.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type TokenService struct {
	jwtMgr     *security.JWTManager
	userRepo   repository.UserRepository
	sessions   *SessionService
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(
	jwtMgr *security.JWTManager,
	userRepo repository.UserRepository,
	sessions *SessionService,
	accessTTL, refreshTTL time.Duration,
) *TokenService {
	return &TokenService{
		jwtMgr:     jwtMgr,
		userRepo:   userRepo,
		sessions:   sessions,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue creates a session and mints the access/refresh pair bound to it.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, ip, userAgent string) (*TokenPair, error) {
	session, err := s.sessions.Create(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	access, err := s.jwtMgr.SignAccessToken(user.ID, user.Email, session.ID, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwtMgr.SignRefreshToken(user.ID, session.ID, session.RefreshTokenID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, SessionID: session.ID}, nil
}

// Refresh validates a presented refresh token against its session and mints
// a new access token. The refresh token id is deliberately not rotated on
// use: concurrent refreshes from devices sharing a session stay valid, and
// the stored-id equality check below still catches a token minted for a
// superseded id. A mismatch is always a theft signal, so the session is
// deactivated defensively before rejecting.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (string, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}

	// Cache-aside lookup: repeated refreshes of a dead session are absorbed
	// by the negative cache instead of hitting the durable store every time.
	session, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrSessionExpired
	}
	if session.RefreshTokenID != claims.RefreshTokenID {
		_ = s.sessions.Deactivate(ctx, session.ID, "refresh_reuse_detected")
		return "", ErrRefreshReuseDetected
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	if user.Suspended() {
		return "", ErrAccountSuspended
	}

	if err := s.sessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		return "", err
	}
	return s.jwtMgr.SignAccessToken(user.ID, user.Email, session.ID, s.accessTTL)
}
