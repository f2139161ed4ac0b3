package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"portal-auth/internal/domain"
	obsmw "portal-auth/internal/observability/middleware"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeAuthError maps domain errors onto the stable external contract.
// Distinct internal causes deliberately collapse into generic signals
// (unknown email vs wrong password, bad signature vs revoked session).
// tokenStatus is the status used for domain.ErrInvalidToken: 400 on the
// verify/reset endpoints, 401 on refresh and MFA completion. Anything
// unrecognized is logged in full and surfaced only as a 500 with
// fallbackCode.
func writeAuthError(r *http.Request, w http.ResponseWriter, err error, tokenStatus int, fallbackCode string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrUserExists):
		writeError(w, http.StatusConflict, "USER_EXISTS", "an account with this email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, domain.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active")
	case errors.Is(err, domain.ErrInvalidMFACode):
		writeError(w, http.StatusUnauthorized, "INVALID_CODE", "invalid verification code")
	case errors.Is(err, domain.ErrMFANotProvisioned):
		writeError(w, http.StatusBadRequest, "MFA_NOT_PROVISIONED", "multi-factor authentication has not been set up")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, tokenStatus, "INVALID_TOKEN", "invalid or expired token")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
	default:
		slog.Error("request failed",
			"code", fallbackCode,
			"error", err,
			"request_id", obsmw.RequestIDFromContext(r.Context()),
			"trace_id", obsmw.TraceIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, fallbackCode, "internal error")
	}
}
