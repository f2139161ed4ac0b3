package store

import (
	"context"
	"errors"
	"time"

	"portal-auth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	return ss.db.WithContext(ctx).Create(sess).Error
}

// GetActiveByToken returns the unexpired session matching the refresh-token
// value together with its owning user. A revoked (deleted) session and an
// expired one are both ErrRecordNotFound; callers collapse either into the
// generic invalid-token signal.
func (ss *SessionStore) GetActiveByToken(ctx context.Context, token string, now time.Time) (*domain.Session, error) {
	var sess domain.Session
	err := ss.db.WithContext(ctx).
		Preload("User").
		First(&sess, "refresh_token = ? AND expires_at > ?", token, now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteByToken removes the single session holding the given refresh token.
// Deleting zero rows is not an error; logout is idempotent.
func (ss *SessionStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	tx := ss.db.WithContext(ctx).
		Where("refresh_token = ?", token).
		Delete(&domain.Session{})
	return tx.RowsAffected, tx.Error
}

// DeleteAllForUser wipes every session the user owns, forcing
// re-authentication everywhere.
func (ss *SessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx := ss.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Session{})
	return tx.RowsAffected, tx.Error
}
