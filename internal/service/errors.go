package service

import "errors"

// Error taxonomy. Authentication failures reject with no session created;
// authorization failures leave any existing session inactive; conflict and
// validation failures leave no partial state behind.
var (
	// authentication
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid token")
	ErrSessionExpired       = errors.New("session expired")
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// authorization
	ErrAccountSuspended = errors.New("account suspended")

	// conflict
	ErrEmailTaken = errors.New("email already registered")

	// validation
	ErrValidation = errors.New("invalid input")

	// entitlement
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrPaymentNotVerified = errors.New("payment not verified")

	// throttling
	ErrRateLimited = errors.New("rate limited")
)
