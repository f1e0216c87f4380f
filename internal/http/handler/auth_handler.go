package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/altairlabs/gatekeep/internal/http/middleware"
	"github.com/altairlabs/gatekeep/internal/http/response"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/service"
)

const oauthStateCookie = "gk_oauth_state"

type AuthHandler struct {
	auth  *service.AuthService
	oauth *service.OAuthService
}

func NewAuthHandler(auth *service.AuthService, oauth *service.OAuthService) *AuthHandler {
	return &AuthHandler{auth: auth, oauth: oauth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", nil)
		return
	}
	result, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name, clientIP(r), r.UserAgent())
	if err != nil {
		observability.RecordAuthLogin("register", "failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.RecordAuthLogin("register", "success")
	observability.Audit(r, "user.registered", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", nil)
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		observability.RecordAuthLogin("password", "failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.RecordAuthLogin("password", "success")
	observability.Audit(r, "user.login", "user_id", result.User.ID, "method", "password")
	response.JSON(w, r, http.StatusOK, result)
}

// GoogleLogin hands the browser to the provider. The random state round-trips
// through a short-lived cookie and is checked on callback.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth/google",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.LoginURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		observability.RecordAuthLogin("oauth_google", "failure")
		response.Error(w, r, http.StatusBadRequest, "OAUTH_STATE_MISMATCH", "state parameter mismatch", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/api/v1/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		observability.RecordAuthLogin("oauth_google", "failure")
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "missing authorization code", nil)
		return
	}
	identity, err := h.oauth.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		observability.RecordAuthLogin("oauth_google", "failure")
		observability.Audit(r, "oauth.callback.failed", "reason", service.ClassifyOAuthError(err))
		response.Error(w, r, http.StatusUnauthorized, "OAUTH_EXCHANGE_FAILED", "provider sign-in failed", nil)
		return
	}
	result, err := h.auth.OAuthLogin(r.Context(), *identity, clientIP(r), r.UserAgent())
	if err != nil {
		observability.RecordAuthLogin("oauth_google", "failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.RecordAuthLogin("oauth_google", "success")
	observability.Audit(r, "user.login", "user_id", result.User.ID, "method", "oauth_google")
	response.JSON(w, r, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "missing refresh_token", nil)
		return
	}
	access, err := h.auth.Refresh(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrRefreshReuseDetected) {
			observability.RecordAuthRefresh("reuse_detected")
			observability.Audit(r, "session.refresh_reuse")
		} else {
			observability.RecordAuthRefresh("failure")
		}
		response.ServiceError(w, r, err)
		return
	}
	observability.RecordAuthRefresh("success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	if err := h.auth.Logout(r.Context(), claims.SessionID); err != nil {
		observability.RecordAuthLogout("failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.RecordAuthLogout("success")
	observability.Audit(r, "user.logout", "user_id", claims.Subject, "session_id", claims.SessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", nil)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "user.password_changed", "user_id", claims.Subject)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func randomState() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().String()))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
