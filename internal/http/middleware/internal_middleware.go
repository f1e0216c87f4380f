package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/altairlabs/gatekeep/internal/http/response"
)

// RequireInternalToken guards service-to-service endpoints with a shared
// secret in X-Internal-Token. Comparison is constant time.
func RequireInternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "internal endpoint", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
