package domain

import "time"

type TokenKind string

const (
	TokenKindEmailVerify   TokenKind = "email_verify"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// VerificationToken is a single-use, time-boxed token proving control of an
// email address (email_verify) or authorizing a password change
// (password_reset). At most one row exists per (user, kind).
type VerificationToken struct {
	ID        TokenID   `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID    `gorm:"type:uuid;uniqueIndex:ux_verification_tokens_user_kind" db:"user_id"`
	Kind      TokenKind `gorm:"type:text;uniqueIndex:ux_verification_tokens_user_kind" db:"kind"`
	Token     string    `gorm:"type:text;uniqueIndex:ux_verification_tokens_token" db:"token"`
	ExpiresAt time.Time `gorm:"not null" db:"expires_at"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`

	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" db:"-"`
}

func (VerificationToken) TableName() string { return "verification_tokens" }
