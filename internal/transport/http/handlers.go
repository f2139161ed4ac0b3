package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"portal-auth/internal/dto"
	"portal-auth/internal/netutil"
	"portal-auth/internal/observability/metrics"
	"portal-auth/internal/ratelimit"
	"portal-auth/internal/service"
)

type Handlers struct {
	auth   service.AuthService
	tokens service.TokenService
	mfa    service.MFAService

	loginLimiter *ratelimit.Limiter
	resetLimiter *ratelimit.Limiter
}

func NewHandlers(auth service.AuthService, tokens service.TokenService, mfa service.MFAService, loginLimiter, resetLimiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		auth:         auth,
		tokens:       tokens,
		mfa:          mfa,
		loginLimiter: loginLimiter,
		resetLimiter: resetLimiter,
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// XFF can be a list: client, proxy1, proxy2...
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

func decode(r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	return err == nil || err == io.EOF
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	res, err := h.auth.Register(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "REGISTRATION_ERROR")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	ip := clientIP(r)
	if !h.loginLimiter.Allow(r.Context(), strings.ToLower(req.Email)+"|"+ip) {
		metrics.RateLimitedTotal.WithLabelValues("login").Inc()
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
		return
	}
	res, err := h.auth.Login(r.Context(), req, ip, r.UserAgent())
	if err != nil {
		writeAuthError(r, w, err, http.StatusUnauthorized, "LOGIN_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) mfaLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.MFALoginRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	res, err := h.auth.CompleteMFALogin(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeAuthError(r, w, err, http.StatusUnauthorized, "LOGIN_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "refresh token required")
		return
	}
	res, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(r, w, err, http.StatusUnauthorized, "REFRESH_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "missing bearer token")
		return
	}
	var req dto.LogoutRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if err := h.auth.Logout(r.Context(), id.UserID, req.RefreshToken); err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "LOGOUT_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out."})
}

func (h *Handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	email, err := h.auth.VerifyEmail(r.Context(), token)
	if err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "VERIFICATION_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.VerifyEmailResponse{
		Message: "Email verified. You can now sign in.",
		Email:   email,
	})
}

// forgotPassword answers with the same generic message whether or not the
// account exists.
func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if !h.resetLimiter.Allow(r.Context(), clientIP(r)) {
		metrics.RateLimitedTotal.WithLabelValues("password_forgot").Inc()
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "RESET_REQUEST_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "If an account exists for that address, a reset link has been sent.",
	})
}

func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "RESET_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Password updated. Please sign in again."})
}

func (h *Handlers) mfaSetup(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "missing bearer token")
		return
	}
	secret, uri, err := h.mfa.ProvisionTOTP(r.Context(), id.UserID)
	if err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "MFA_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.MFASetupResponse{Secret: secret, OtpauthURL: uri})
}

func (h *Handlers) mfaEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "missing bearer token")
		return
	}
	var req dto.MFAEnableRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if err := h.mfa.EnableTOTP(r.Context(), id.UserID, req.Code); err != nil {
		writeAuthError(r, w, err, http.StatusBadRequest, "MFA_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Multi-factor authentication enabled."})
}
