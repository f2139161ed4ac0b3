package domain

import "time"

type Session struct {
	ID           SessionID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID       UserID    `gorm:"type:uuid;index" db:"user_id"`
	RefreshToken string    `gorm:"type:text;uniqueIndex:ux_sessions_refresh_token" db:"refresh_token"`
	ExpiresAt    time.Time `gorm:"not null" db:"expires_at"`
	IP           string    `gorm:"type:inet" db:"ip"`
	UserAgent    string    `gorm:"type:text" db:"user_agent"`
	CreatedAt    time.Time `gorm:"not null" db:"created_at"`

	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" db:"-"`
}

func (Session) TableName() string { return "sessions" }
