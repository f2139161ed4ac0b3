package service

import (
	"context"

	"portal-auth/internal/domain"
)

type MFAService interface {
	// ProvisionTOTP generates a fresh TOTP secret for the user and stores it
	// in disabled state, replacing any prior secret.
	ProvisionTOTP(ctx context.Context, userID domain.UserID) (secret, otpauthURL string, err error)
	// EnableTOTP validates a code against the provisioned secret and flips
	// the enabled flag.
	EnableTOTP(ctx context.Context, userID domain.UserID, code string) error
	// ValidateCode checks a TOTP code against a stored secret.
	ValidateCode(secret, code string) bool
}
