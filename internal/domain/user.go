package domain

import "time"

type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

type UserStatus string

const (
	StatusPending   UserStatus = "pending"
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

type User struct {
	ID              UserID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email           string     `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	PasswordHash    string     `gorm:"type:text;not null" db:"password_hash" json:"-"`
	FirstName       string     `gorm:"type:text;not null" db:"first_name" json:"firstName"`
	LastName        string     `gorm:"type:text;not null" db:"last_name" json:"lastName"`
	Company         string     `gorm:"type:text" db:"company" json:"company,omitempty"`
	Role            Role       `gorm:"type:text;not null;default:client" db:"role" json:"role"`
	Status          UserStatus `gorm:"type:text;not null;default:pending" db:"status" json:"status"`
	MFASecret       string     `gorm:"type:text" db:"mfa_secret" json:"-"`
	MFAEnabled      bool       `gorm:"not null;default:false" db:"mfa_enabled" json:"mfaEnabled"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// IsActive reports whether the account may authenticate. Pending accounts
// stay locked out until email verification flips them to active.
func (u *User) IsActive() bool { return u.Status == StatusActive }
