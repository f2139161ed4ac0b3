package store

import (
	"context"
	"errors"
	"time"

	"portal-auth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	if err := u.db.WithContext(ctx).Create(usr).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserExists
		}
		return err
	}
	return nil
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Activate flips a pending user to active and stamps the verification time.
// The status guard keeps suspended accounts suspended; the returned row count
// tells the caller whether the transition happened.
func (u *UserStore) Activate(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tx := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND status = ?", userID, domain.StatusPending).
		Updates(map[string]any{
			"status":            domain.StatusActive,
			"email_verified_at": at,
			"updated_at":        at,
		})
	return tx.RowsAffected, tx.Error
}

func (u *UserStore) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string, at time.Time) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_hash": hash,
			"updated_at":    at,
		}).Error
}

func (u *UserStore) SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
}

func (u *UserStore) SetMFASecret(ctx context.Context, userID uuid.UUID, secret string, enabled bool, at time.Time) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"mfa_secret":  secret,
			"mfa_enabled": enabled,
			"updated_at":  at,
		}).Error
}
