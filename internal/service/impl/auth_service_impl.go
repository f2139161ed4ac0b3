package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"portal-auth/internal/domain"
	"portal-auth/internal/dto"
	"portal-auth/internal/events"
	"portal-auth/internal/observability/metrics"
	"portal-auth/internal/service"
	"portal-auth/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultVerifyTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL  = 1 * time.Hour
	minPasswordLength     = 8
)

type AuthServiceImpl struct {
	Store           dataStore
	PasswordService service.PasswordService
	TService        service.TokenService
	Email           service.EmailService
	MFA             service.MFAService

	VerifyTokenTTL time.Duration
	ResetTokenTTL  time.Duration
}

func NewAuthServiceImpl(st *store.Store, passwordService service.PasswordService, tokenService service.TokenService, email service.EmailService, mfa service.MFAService) *AuthServiceImpl {
	return &AuthServiceImpl{
		Store:           gormStoreAdapter{store: st},
		PasswordService: passwordService,
		TService:        tokenService,
		Email:           email,
		MFA:             mfa,
		VerifyTokenTTL:  DefaultVerifyTokenTTL,
		ResetTokenTTL:   DefaultResetTokenTTL,
	}
}

// Narrow store views so the flows can be exercised against an in-memory
// store in tests.

type dataStore interface {
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Users() userStore
	Sessions() sessionStore
	Verifications() verificationStore
}

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Activate(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string, at time.Time) error
	SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
	SetMFASecret(ctx context.Context, userID uuid.UUID, secret string, enabled bool, at time.Time) error
}

type sessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	DeleteByToken(ctx context.Context, token string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type verificationStore interface {
	Upsert(ctx context.Context, t *domain.VerificationToken) error
	GetValid(ctx context.Context, token string, kind domain.TokenKind, now time.Time) (*domain.VerificationToken, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (int64, error)
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormTxAdapter{tx: tx})
	})
}

type gormTxAdapter struct {
	tx *store.Store
}

func (g gormTxAdapter) Users() userStore { return g.tx.Users() }

func (g gormTxAdapter) Sessions() sessionStore { return g.tx.Sessions() }

func (g gormTxAdapter) Verifications() verificationStore { return g.tx.Verifications() }

func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.RegisterResponse, error) {
	result := "success"
	defer func() { metrics.RegistrationsTotal.WithLabelValues(result).Inc() }()

	email := normalizeEmail(r.Email)
	if email == "" || r.FirstName == "" || r.LastName == "" {
		result = "failure"
		return nil, ErrEmptyCredential
	}
	if !strings.ContainsRune(email, '@') {
		result = "failure"
		return nil, ErrInvalidEmail
	}
	if r.Password == "" {
		result = "failure"
		return nil, ErrEmptyPassword
	}
	if len(r.Password) < minPasswordLength {
		result = "failure"
		return nil, ErrPasswordLength
	}

	// Hashing is slow on purpose; keep it outside the transaction.
	hash, err := a.PasswordService.Hash(r.Password)
	if err != nil {
		result = "failure"
		return nil, err
	}

	var out dto.RegisterResponse
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		now := time.Now().UTC()

		u := &domain.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: hash,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			Company:      r.Company,
			Role:         domain.RoleClient,
			Status:       domain.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return err // unique constraint surfaces as domain.ErrUserExists
		}

		tok := &domain.VerificationToken{
			ID:        uuid.New(),
			UserID:    u.ID,
			Kind:      domain.TokenKindEmailVerify,
			Token:     newOpaqueToken(),
			ExpiresAt: now.Add(a.VerifyTokenTTL),
			CreatedAt: now,
		}
		if err := tx.Verifications().Upsert(ctx, tok); err != nil {
			return err
		}

		// The mail transport is awaited inside the transaction: a failed
		// dispatch rolls the user and token back so no unverifiable account
		// is left behind.
		if err := a.Email.SendVerification(ctx, u.Email, tok.Token); err != nil {
			return err
		}

		slog.Info("user registered",
			"user_id", u.ID,
			"ip", ip,
			"event", events.UserRegistered{UserID: u.ID.String(), Email: u.Email, At: now},
		)
		out = dto.RegisterResponse{
			Message: "Registration successful. Please check your email to verify your account.",
			UserID:  u.ID.String(),
		}
		return nil
	})
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &out, nil
}

func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResponse, error) {
	result := "success"
	defer func() { metrics.LoginsTotal.WithLabelValues(result).Inc() }()

	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		result = "failure"
		return nil, ErrEmptyCredential
	}

	var resp *dto.LoginResponse
	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().GetByEmail(ctx, email)
		if err != nil {
			// Unknown email and wrong password are indistinguishable; anything
			// other than a missing row is a store fault and must surface as one.
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidCredentials
			}
			return err
		}
		if !user.IsActive() {
			return domain.ErrAccountInactive
		}
		if !a.PasswordService.Verify(r.Password, user.PasswordHash) {
			return domain.ErrInvalidCredentials
		}

		if user.MFAEnabled {
			mfaToken, err := a.TService.IssueMFAToken(user)
			if err != nil {
				return err
			}
			result = "mfa_challenge"
			resp = &dto.LoginResponse{RequiresMFA: true, MFAToken: mfaToken}
			return nil
		}

		resp, err = a.issueSession(ctx, tx, user, ip, ua)
		return err
	})
	if err != nil {
		result = "failure"
		return nil, err
	}
	return resp, nil
}

func (a *AuthServiceImpl) CompleteMFALogin(ctx context.Context, r dto.MFALoginRequest, ip, ua string) (*dto.LoginResponse, error) {
	result := "success"
	defer func() { metrics.LoginsTotal.WithLabelValues(result).Inc() }()

	if r.MFAToken == "" || r.Code == "" {
		result = "failure"
		return nil, ErrEmptyCredential
	}

	userID, err := a.TService.VerifyMFAToken(r.MFAToken)
	if err != nil {
		result = "failure"
		return nil, domain.ErrInvalidToken
	}

	var resp *dto.LoginResponse
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}
		if !user.IsActive() {
			return domain.ErrAccountInactive
		}
		if !user.MFAEnabled || user.MFASecret == "" {
			return domain.ErrInvalidToken
		}
		if !a.MFA.ValidateCode(user.MFASecret, r.Code) {
			return domain.ErrInvalidMFACode
		}

		resp, err = a.issueSession(ctx, tx, user, ip, ua)
		return err
	})
	if err != nil {
		result = "failure"
		return nil, err
	}
	return resp, nil
}

// issueSession mints the token pair, stamps last-login and attaches the
// sanitized profile. The session row is created through tx so it rolls back
// with the rest of the login if anything after it fails.
func (a *AuthServiceImpl) issueSession(ctx context.Context, tx storeTx, user *domain.User, ip, ua string) (*dto.LoginResponse, error) {
	resp, err := a.TService.Issue(ctx, tx.Sessions(), user, ip, ua)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := tx.Users().SetLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	resp.User = dto.ProfileFromUser(user)
	return resp, nil
}

// Logout deletes the session matching the given refresh token, or every
// session the user owns if no token is supplied. Deleting zero rows is fine.
func (a *AuthServiceImpl) Logout(ctx context.Context, userID domain.UserID, refreshToken string) error {
	return a.Store.WithTx(ctx, func(tx storeTx) error {
		var (
			n   int64
			err error
		)
		if refreshToken != "" {
			n, err = tx.Sessions().DeleteByToken(ctx, refreshToken)
		} else {
			n, err = tx.Sessions().DeleteAllForUser(ctx, userID)
		}
		if err != nil {
			return err
		}
		slog.Info("user logged out",
			"user_id", userID,
			"sessions_deleted", n,
			"event", events.SessionsRevoked{UserID: userID.String(), Count: n, At: time.Now().UTC()},
		)
		return nil
	})
}

func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, token string) (string, error) {
	result := "success"
	defer func() { metrics.EmailVerificationsTotal.WithLabelValues(result).Inc() }()

	if token == "" {
		result = "failure"
		return "", domain.ErrInvalidToken
	}

	var email string
	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		now := time.Now().UTC()

		t, err := tx.Verifications().GetValid(ctx, token, domain.TokenKindEmailVerify, now)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}

		// Claim the row first: the loser of a concurrent double-consume
		// deletes zero rows and must report invalid token.
		n, err := tx.Verifications().DeleteByID(ctx, t.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidToken
		}

		// Activation only moves pending to active. A suspended account holding
		// a stale verify link must not come back to life through it.
		activated, err := tx.Users().Activate(ctx, t.UserID, now)
		if err != nil {
			return err
		}
		if activated == 0 {
			return domain.ErrInvalidToken
		}

		if t.User != nil {
			email = t.User.Email
		} else {
			u, err := tx.Users().GetByID(ctx, t.UserID)
			if err != nil {
				return err
			}
			email = u.Email
		}
		slog.Info("email verified",
			"user_id", t.UserID,
			"event", events.UserVerified{UserID: t.UserID.String(), At: now},
		)
		return nil
	})
	if err != nil {
		result = "failure"
		return "", err
	}
	return email, nil
}

// RequestPasswordReset always succeeds from the caller's point of view; the
// response never reveals whether the account exists.
func (a *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	result := "success"
	defer func() { metrics.PasswordResetsTotal.WithLabelValues("request", result).Inc() }()

	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now().UTC()
		tok := &domain.VerificationToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Kind:      domain.TokenKindPasswordReset,
			Token:     newOpaqueToken(),
			ExpiresAt: now.Add(a.ResetTokenTTL),
			CreatedAt: now,
		}
		// Insert-or-replace keyed on (user, kind): any prior unexpired reset
		// token is superseded.
		if err := tx.Verifications().Upsert(ctx, tok); err != nil {
			return err
		}
		return a.Email.SendPasswordReset(ctx, user.Email, tok.Token)
	})
	if err != nil {
		result = "failure"
	}
	return err
}

func (a *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	result := "success"
	defer func() { metrics.PasswordResetsTotal.WithLabelValues("complete", result).Inc() }()

	if token == "" {
		result = "failure"
		return domain.ErrInvalidToken
	}
	if newPassword == "" {
		result = "failure"
		return ErrEmptyPassword
	}
	if len(newPassword) < minPasswordLength {
		result = "failure"
		return ErrPasswordLength
	}

	hash, err := a.PasswordService.Hash(newPassword)
	if err != nil {
		result = "failure"
		return err
	}

	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		now := time.Now().UTC()

		t, err := tx.Verifications().GetValid(ctx, token, domain.TokenKindPasswordReset, now)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}
		n, err := tx.Verifications().DeleteByID(ctx, t.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidToken
		}

		if err := tx.Users().SetPasswordHash(ctx, t.UserID, hash, now); err != nil {
			return err
		}

		// A credential change must not leave any pre-reset session usable.
		revoked, err := tx.Sessions().DeleteAllForUser(ctx, t.UserID)
		if err != nil {
			return err
		}
		slog.Info("password reset completed",
			"user_id", t.UserID,
			"sessions_deleted", revoked,
			"event", events.PasswordReset{UserID: t.UserID.String(), SessionsRevoked: revoked, At: now},
		)
		return nil
	})
	if err != nil {
		result = "failure"
	}
	return err
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// newOpaqueToken returns 32 bytes of entropy, hex encoded. Verification links
// embed the value as-is in a query parameter.
func newOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; uuid is the fallback.
		return uuid.NewString() + uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
