package response

import (
	"errors"
	"net/http"

	"github.com/altairlabs/gatekeep/internal/service"
)

// ServiceError maps a service-layer sentinel onto the wire taxonomy. Unknown
// errors become an opaque 500 so internals never leak to callers.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "request failed validation", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, service.ErrInvalidToken):
		Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "token is invalid", nil)
	case errors.Is(err, service.ErrSessionExpired):
		Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session is expired or revoked", nil)
	case errors.Is(err, service.ErrRefreshReuseDetected):
		Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session is expired or revoked", nil)
	case errors.Is(err, service.ErrAccountSuspended):
		Error(w, r, http.StatusForbidden, "ACCOUNT_SUSPENDED", "account is suspended", nil)
	case errors.Is(err, service.ErrEmailTaken):
		Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "email is already registered", nil)
	case errors.Is(err, service.ErrQuotaExceeded):
		Error(w, r, http.StatusForbidden, "QUOTA_EXCEEDED", "plan quota exceeded", nil)
	case errors.Is(err, service.ErrPaymentNotVerified):
		Error(w, r, http.StatusConflict, "PAYMENT_NOT_VERIFIED", "payment could not be verified", nil)
	case errors.Is(err, service.ErrRateLimited):
		Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
