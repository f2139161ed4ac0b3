package events

import "time"

type SessionsRevoked struct {
	UserID string    `json:"userId"`
	Count  int64     `json:"count"`
	At     time.Time `json:"at"`
}

type PasswordReset struct {
	UserID          string    `json:"userId"`
	SessionsRevoked int64     `json:"sessionsRevoked"`
	At              time.Time `json:"at"`
}
