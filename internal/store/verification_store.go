package store

import (
	"context"
	"errors"
	"time"

	"portal-auth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VerificationStore struct{ db *gorm.DB }

func (s *Store) Verifications() *VerificationStore { return &VerificationStore{db: s.DB} }

// Upsert inserts the token row, replacing any outstanding token for the same
// (user, kind) pair. Requires the unique index on (user_id, kind).
func (vs *VerificationStore) Upsert(ctx context.Context, t *domain.VerificationToken) error {
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	return vs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "created_at"}),
	}).Create(t).Error
}

// GetValid returns the unexpired token of the given kind together with its
// owning user. Unknown and expired tokens are indistinguishable to callers.
func (vs *VerificationStore) GetValid(ctx context.Context, token string, kind domain.TokenKind, now time.Time) (*domain.VerificationToken, error) {
	var t domain.VerificationToken
	err := vs.db.WithContext(ctx).
		Preload("User").
		First(&t, "token = ? AND kind = ? AND expires_at > ?", token, kind, now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteByID claims the token row. The returned row count is the consume
// check: inside a transaction, the loser of two concurrent attempts deletes
// zero rows and must treat the token as invalid.
func (vs *VerificationStore) DeleteByID(ctx context.Context, id uuid.UUID) (int64, error) {
	tx := vs.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.VerificationToken{})
	return tx.RowsAffected, tx.Error
}
