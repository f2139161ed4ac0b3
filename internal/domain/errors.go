package domain

import "errors"

var (
	ErrValidation         = errors.New("invalid request")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidMFACode     = errors.New("invalid mfa code")
	ErrMFANotProvisioned  = errors.New("mfa not provisioned")
	ErrRateLimited        = errors.New("rate limited")
)
