package service

import (
	"context"

	"portal-auth/internal/domain"
	"portal-auth/internal/dto"
)

// SessionCreator persists the session row minted during token issuance.
// Callers hand in their transaction-scoped store so the row commits or rolls
// back with the rest of the login unit of work.
type SessionCreator interface {
	Create(ctx context.Context, s *domain.Session) error
}

type TokenService interface {
	// Issue creates a session row for the user through the given store and
	// returns a signed access/refresh token pair.
	Issue(ctx context.Context, sessions SessionCreator, user *domain.User, ip, ua string) (*dto.LoginResponse, error)
	// Refresh validates a refresh token against both its signature and a
	// live session row and mints a new access token. The refresh token and
	// its session are left untouched.
	Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error)
	// IssueMFAToken signs a short-lived intermediate token scoped only to
	// completing an MFA challenge.
	IssueMFAToken(user *domain.User) (string, error)
	// VerifyMFAToken checks an intermediate token and returns the user id it
	// was issued for.
	VerifyMFAToken(token string) (domain.UserID, error)
	// VerifyAccessToken checks an access token and returns the subject and
	// role claims.
	VerifyAccessToken(token string) (domain.UserID, string, error)
}
