package impl

import (
	"context"
	"time"

	"portal-auth/internal/domain"
	"portal-auth/internal/store"

	"github.com/pquerna/otp/totp"
)

type MFAServiceImpl struct {
	Store  dataStore
	Issuer string
}

func NewMFAServiceImpl(st *store.Store, issuer string) *MFAServiceImpl {
	return &MFAServiceImpl{Store: gormStoreAdapter{store: st}, Issuer: issuer}
}

func (m *MFAServiceImpl) ProvisionTOTP(ctx context.Context, userID domain.UserID) (string, string, error) {
	var secret, uri string
	err := m.Store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      m.Issuer,
			AccountName: user.Email,
		})
		if err != nil {
			return err
		}
		secret = key.Secret()
		uri = key.URL()
		// Stored disabled until the user proves a working authenticator.
		return tx.Users().SetMFASecret(ctx, userID, secret, false, time.Now().UTC())
	})
	if err != nil {
		return "", "", err
	}
	return secret, uri, nil
}

func (m *MFAServiceImpl) EnableTOTP(ctx context.Context, userID domain.UserID, code string) error {
	return m.Store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.MFASecret == "" {
			return domain.ErrMFANotProvisioned
		}
		if !totp.Validate(code, user.MFASecret) {
			return domain.ErrInvalidMFACode
		}
		return tx.Users().SetMFASecret(ctx, userID, user.MFASecret, true, time.Now().UTC())
	})
}

func (m *MFAServiceImpl) ValidateCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
