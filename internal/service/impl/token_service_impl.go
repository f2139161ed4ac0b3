package impl

import (
	"context"
	"errors"
	"time"

	"portal-auth/internal/domain"
	"portal-auth/internal/dto"
	"portal-auth/internal/netutil"
	"portal-auth/internal/observability/metrics"
	"portal-auth/internal/service"
	"portal-auth/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ====== Config ======

type TokenConfig struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration // e.g. 15m
	RefreshTTL time.Duration // e.g. 30 * 24h
	MFATTL     time.Duration // e.g. 5m
	AccessKey  []byte        // HS256 secret for access and MFA tokens
	RefreshKey []byte        // distinct HS256 secret for refresh tokens
}

// ====== Claims ======

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeMFA     = "mfa"
)

type AccessClaims struct {
	Typ  string `json:"typ"`
	Role string `json:"role"`
	SID  string `json:"sid"` // session id
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Typ string `json:"typ"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type MFAClaims struct {
	Typ string `json:"typ"`
	jwt.RegisteredClaims
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg      TokenConfig
	sessions tokenSessionStore
}

// tokenSessionStore is the slice of the session store the refresh path needs.
// Issuance writes through the caller's transaction instead.
type tokenSessionStore interface {
	GetActiveByToken(ctx context.Context, token string, now time.Time) (*domain.Session, error)
}

func NewTokenServiceHS256(cfg TokenConfig, st *store.Store) *TokenServiceImpl {
	return &TokenServiceImpl{cfg: cfg, sessions: st.Sessions()}
}

// Issue signs an access/refresh pair and persists the refresh token as a new
// session row carrying the caller's client metadata. The row goes through the
// caller's session store so it shares the caller's transaction fate.
func (t *TokenServiceImpl) Issue(ctx context.Context, sessions service.SessionCreator, user *domain.User, ip, ua string) (*dto.LoginResponse, error) {
	result := "success"
	defer func() { metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc() }()

	now := time.Now().UTC()
	sessionID := uuid.New()

	refresh, err := t.signRefresh(user, sessionID, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	sess := &domain.Session{
		ID:           sessionID,
		UserID:       user.ID,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(t.cfg.RefreshTTL),
		IP:           normalizeIP(ip),
		UserAgent:    netutil.TruncateUserAgent(ua),
		CreatedAt:    now,
	}
	if err := sessions.Create(ctx, sess); err != nil {
		result = "failure"
		return nil, err
	}

	access, err := t.signAccess(user, sessionID, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	return &dto.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}

// Refresh checks the token's signature with the refresh secret, then
// independently requires a live session row joined to an active user. A
// syntactically valid but revoked token fails the second check. The session
// is not rotated or extended; the refresh token keeps its original expiry.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error) {
	result := "success"
	defer func() { metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc() }()

	now := time.Now().UTC()

	claims := &RefreshClaims{}
	if err := t.parse(refreshToken, t.cfg.RefreshKey, claims); err != nil || claims.Typ != tokenTypeRefresh {
		result = "failure"
		return nil, domain.ErrInvalidToken
	}

	sess, err := t.sessions.GetActiveByToken(ctx, refreshToken, now)
	if err != nil {
		result = "failure"
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if sess.User == nil {
		result = "failure"
		return nil, domain.ErrInvalidToken
	}
	if !sess.User.IsActive() {
		result = "failure"
		return nil, domain.ErrAccountInactive
	}

	access, err := t.signAccess(sess.User, sess.ID, now)
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.RefreshResponse{
		AccessToken: access,
		ExpiresIn:   int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}

// IssueMFAToken signs the short-lived intermediate token handed out after a
// correct password on an MFA-enabled account. It carries no session.
func (t *TokenServiceImpl) IssueMFAToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := MFAClaims{
		Typ: tokenTypeMFA,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.MFATTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.AccessKey)
}

func (t *TokenServiceImpl) VerifyMFAToken(token string) (domain.UserID, error) {
	claims := &MFAClaims{}
	if err := t.parse(token, t.cfg.AccessKey, claims); err != nil || claims.Typ != tokenTypeMFA {
		return uuid.Nil, domain.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return id, nil
}

func (t *TokenServiceImpl) VerifyAccessToken(token string) (domain.UserID, string, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, t.cfg.AccessKey, claims); err != nil || claims.Typ != tokenTypeAccess {
		return uuid.Nil, "", domain.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", domain.ErrInvalidToken
	}
	return id, claims.Role, nil
}

// ====== Helpers ======

func (t *TokenServiceImpl) signAccess(user *domain.User, sessionID domain.SessionID, now time.Time) (string, error) {
	claims := AccessClaims{
		Typ:  tokenTypeAccess,
		Role: string(user.Role),
		SID:  sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.AccessKey)
}

func (t *TokenServiceImpl) signRefresh(user *domain.User, sessionID domain.SessionID, now time.Time) (string, error) {
	claims := RefreshClaims{
		Typ: tokenTypeRefresh,
		SID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.RefreshKey)
}

func (t *TokenServiceImpl) parse(tokenStr string, key []byte, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
	)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return err
	}
	if !tok.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return ip
}
