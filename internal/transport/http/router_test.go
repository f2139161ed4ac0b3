package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portal-auth/internal/domain"
	"portal-auth/internal/dto"
	"portal-auth/internal/service"

	"github.com/google/uuid"
)

// ====== Stubs ======

type stubAuthService struct {
	registerFn func(r dto.RegisterRequest) (*dto.RegisterResponse, error)
	loginFn    func(r dto.LoginRequest) (*dto.LoginResponse, error)
	mfaLoginFn func(r dto.MFALoginRequest) (*dto.LoginResponse, error)
	logoutFn   func(userID domain.UserID, token string) error
	verifyFn   func(token string) (string, error)
	forgotFn   func(email string) error
	resetFn    func(token, password string) error
}

func (s *stubAuthService) Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.RegisterResponse, error) {
	return s.registerFn(r)
}

func (s *stubAuthService) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResponse, error) {
	return s.loginFn(r)
}

func (s *stubAuthService) CompleteMFALogin(ctx context.Context, r dto.MFALoginRequest, ip, ua string) (*dto.LoginResponse, error) {
	return s.mfaLoginFn(r)
}

func (s *stubAuthService) Logout(ctx context.Context, userID domain.UserID, refreshToken string) error {
	return s.logoutFn(userID, refreshToken)
}

func (s *stubAuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	return s.verifyFn(token)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.forgotFn(email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resetFn(token, newPassword)
}

type stubTokenService struct {
	refreshFn func(token string) (*dto.RefreshResponse, error)
	verifyFn  func(token string) (domain.UserID, string, error)
}

func (s *stubTokenService) Issue(ctx context.Context, sessions service.SessionCreator, user *domain.User, ip, ua string) (*dto.LoginResponse, error) {
	return nil, domain.ErrInvalidToken
}

func (s *stubTokenService) Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error) {
	return s.refreshFn(refreshToken)
}

func (s *stubTokenService) IssueMFAToken(user *domain.User) (string, error) {
	return "", domain.ErrInvalidToken
}

func (s *stubTokenService) VerifyMFAToken(token string) (domain.UserID, error) {
	return uuid.Nil, domain.ErrInvalidToken
}

func (s *stubTokenService) VerifyAccessToken(token string) (domain.UserID, string, error) {
	if s.verifyFn != nil {
		return s.verifyFn(token)
	}
	return uuid.Nil, "", domain.ErrInvalidToken
}

type stubMFAService struct {
	provisionFn func(userID domain.UserID) (string, string, error)
	enableFn    func(userID domain.UserID, code string) error
}

func (s *stubMFAService) ProvisionTOTP(ctx context.Context, userID domain.UserID) (string, string, error) {
	return s.provisionFn(userID)
}

func (s *stubMFAService) EnableTOTP(ctx context.Context, userID domain.UserID, code string) error {
	return s.enableFn(userID, code)
}

func (s *stubMFAService) ValidateCode(secret, code string) bool { return false }

// ====== Helpers ======

func newTestRouter(auth *stubAuthService, tokens *stubTokenService, mfa *stubMFAService) http.Handler {
	if auth == nil {
		auth = &stubAuthService{}
	}
	if tokens == nil {
		tokens = &stubTokenService{}
	}
	if mfa == nil {
		mfa = &stubMFAService{}
	}
	// Nil limiters always allow; Redis wiring is exercised elsewhere.
	h := NewHandlers(auth, tokens, mfa, nil, nil)
	return NewRouter(h, tokens, []string{"*"})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

// ====== Tests ======

func TestHealthz(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRegisterEndpoint(t *testing.T) {
	userID := uuid.NewString()
	auth := &stubAuthService{
		registerFn: func(r dto.RegisterRequest) (*dto.RegisterResponse, error) {
			if r.Email == "taken@example.com" {
				return nil, domain.ErrUserExists
			}
			return &dto.RegisterResponse{Message: "check your email", UserID: userID}, nil
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", dto.RegisterRequest{
		Email: "new@example.com", Password: "hunter2-hunter2", FirstName: "A", LastName: "B",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res dto.RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.UserID != userID {
		t.Fatalf("unexpected body: %s (%v)", rec.Body.String(), err)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/register", dto.RegisterRequest{
		Email: "taken@example.com", Password: "hunter2-hunter2", FirstName: "A", LastName: "B",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "USER_EXISTS" {
		t.Fatalf("unexpected error code: %+v", body)
	}
}

func TestRegisterMalformedBody(t *testing.T) {
	router := newTestRouter(&stubAuthService{
		registerFn: func(r dto.RegisterRequest) (*dto.RegisterResponse, error) {
			t.Fatalf("service invoked for malformed body")
			return nil, nil
		},
	}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: %+v", body)
	}
}

func TestLoginEndpointStatusMapping(t *testing.T) {
	auth := &stubAuthService{
		loginFn: func(r dto.LoginRequest) (*dto.LoginResponse, error) {
			switch r.Email {
			case "pending@example.com":
				return nil, domain.ErrAccountInactive
			case "mfa@example.com":
				return &dto.LoginResponse{RequiresMFA: true, MFAToken: "intermediate"}, nil
			case "ok@example.com":
				return &dto.LoginResponse{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 900}, nil
			default:
				return nil, domain.ErrInvalidCredentials
			}
		},
	}
	router := newTestRouter(auth, nil, nil)

	cases := []struct {
		email      string
		wantStatus int
		wantCode   string
	}{
		{email: "nobody@example.com", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{email: "pending@example.com", wantStatus: http.StatusForbidden, wantCode: "ACCOUNT_INACTIVE"},
	}
	for _, tc := range cases {
		rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: tc.email, Password: "pw"}, nil)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected %d, got %d", tc.email, tc.wantStatus, rec.Code)
		}
		if body := decodeError(t, rec); body.Error != tc.wantCode {
			t.Fatalf("%s: unexpected error code: %+v", tc.email, body)
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: "mfa@example.com", Password: "pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for MFA challenge, got %d", rec.Code)
	}
	var res dto.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.RequiresMFA || res.MFAToken != "intermediate" || res.AccessToken != "" {
		t.Fatalf("unexpected MFA challenge body: %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: "ok@example.com", Password: "pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMFALoginEndpoint(t *testing.T) {
	auth := &stubAuthService{
		mfaLoginFn: func(r dto.MFALoginRequest) (*dto.LoginResponse, error) {
			if r.Code != "123456" {
				return nil, domain.ErrInvalidMFACode
			}
			return &dto.LoginResponse{AccessToken: "at", RefreshToken: "rt"}, nil
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login/mfa", dto.MFALoginRequest{MFAToken: "x", Code: "000000"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_CODE" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login/mfa", dto.MFALoginRequest{MFAToken: "x", Code: "123456"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	tokens := &stubTokenService{
		refreshFn: func(token string) (*dto.RefreshResponse, error) {
			if token != "live-refresh" {
				return nil, domain.ErrInvalidToken
			}
			return &dto.RefreshResponse{AccessToken: "fresh", ExpiresIn: 900}, nil
		},
	}
	router := newTestRouter(nil, tokens, nil)

	// Missing token is its own signal, before the service is consulted.
	rec := doJSON(t, router, http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "TOKEN_REQUIRED" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: "revoked"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_TOKEN" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: "live-refresh"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res dto.RefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.AccessToken != "fresh" {
		t.Fatalf("unexpected body: %s (%v)", rec.Body.String(), err)
	}
}

func TestLogoutRequiresBearerToken(t *testing.T) {
	userID := uuid.New()
	var gotUserID domain.UserID
	var gotToken string
	auth := &stubAuthService{
		logoutFn: func(id domain.UserID, token string) error {
			gotUserID, gotToken = id, token
			return nil
		},
	}
	tokens := &stubTokenService{
		verifyFn: func(token string) (domain.UserID, string, error) {
			if token != "valid-access" {
				return uuid.Nil, "", domain.ErrInvalidToken
			}
			return userID, "client", nil
		},
	}
	router := newTestRouter(auth, tokens, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/logout", dto.LogoutRequest{}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "TOKEN_REQUIRED" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/logout", dto.LogoutRequest{}, map[string]string{
		"Authorization": "Bearer garbage",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_TOKEN" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/logout", dto.LogoutRequest{RefreshToken: "rt-1"}, map[string]string{
		"Authorization": "Bearer valid-access",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotUserID != userID || gotToken != "rt-1" {
		t.Fatalf("logout called with (%v, %q)", gotUserID, gotToken)
	}
}

func TestVerifyEmailEndpoint(t *testing.T) {
	auth := &stubAuthService{
		verifyFn: func(token string) (string, error) {
			if token != "good-token" {
				return "", domain.ErrInvalidToken
			}
			return "alice@example.com", nil
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/auth/verify-email?token=stale", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_TOKEN" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/auth/verify-email?token=good-token", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res dto.VerifyEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Email != "alice@example.com" {
		t.Fatalf("unexpected body: %s (%v)", rec.Body.String(), err)
	}
}

func TestForgotPasswordAlwaysAnswersGenerically(t *testing.T) {
	var asked []string
	auth := &stubAuthService{
		forgotFn: func(email string) error {
			asked = append(asked, email)
			return nil
		},
	}
	router := newTestRouter(auth, nil, nil)

	for _, email := range []string{"known@example.com", "ghost@example.com"} {
		rec := doJSON(t, router, http.MethodPost, "/v1/auth/password/forgot", dto.ForgotPasswordRequest{Email: email}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", email, rec.Code)
		}
		var res dto.MessageResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Message == "" {
			t.Fatalf("unexpected body: %s (%v)", rec.Body.String(), err)
		}
	}
	if len(asked) != 2 {
		t.Fatalf("expected both requests forwarded, got %v", asked)
	}
}

func TestResetPasswordEndpoint(t *testing.T) {
	auth := &stubAuthService{
		resetFn: func(token, password string) error {
			if token != "good-token" {
				return domain.ErrInvalidToken
			}
			return nil
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/password/reset", dto.ResetPasswordRequest{Token: "stale", Password: "new-password-1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_TOKEN" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/password/reset", dto.ResetPasswordRequest{Token: "good-token", Password: "new-password-1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMFASetupAndEnableEndpoints(t *testing.T) {
	userID := uuid.New()
	tokens := &stubTokenService{
		verifyFn: func(token string) (domain.UserID, string, error) {
			if token != "valid-access" {
				return uuid.Nil, "", domain.ErrInvalidToken
			}
			return userID, "client", nil
		},
	}
	mfa := &stubMFAService{
		provisionFn: func(id domain.UserID) (string, string, error) {
			return "JBSWY3DPEHPK3PXP", "otpauth://totp/portal-auth:alice@example.com", nil
		},
		enableFn: func(id domain.UserID, code string) error {
			if code != "123456" {
				return domain.ErrInvalidMFACode
			}
			return nil
		},
	}
	router := newTestRouter(nil, tokens, mfa)
	authz := map[string]string{"Authorization": "Bearer valid-access"}

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/mfa/setup", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/mfa/setup", nil, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var setup dto.MFASetupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &setup); err != nil || setup.Secret == "" || setup.OtpauthURL == "" {
		t.Fatalf("unexpected setup body: %s (%v)", rec.Body.String(), err)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/mfa/enable", dto.MFAEnableRequest{Code: "000000"}, authz)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad code, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "INVALID_CODE" {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/mfa/enable", dto.MFAEnableRequest{Code: "123456"}, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUnexpectedErrorsSurfaceAs500(t *testing.T) {
	auth := &stubAuthService{
		loginFn: func(r dto.LoginRequest) (*dto.LoginResponse, error) {
			return nil, errors.New("pq: connection refused")
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: "a@b.c", Password: "pw"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "LOGIN_ERROR" {
		t.Fatalf("unexpected error code: %+v", body)
	}
	// The raw failure must never leak to the client.
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error detail leaked: %s", rec.Body.String())
	}
}

func TestValidationErrorsSurfaceAs400(t *testing.T) {
	auth := &stubAuthService{
		loginFn: func(r dto.LoginRequest) (*dto.LoginResponse, error) {
			return nil, domain.ErrValidation
		},
	}
	router := newTestRouter(auth, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", dto.LoginRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: %+v", body)
	}
}
