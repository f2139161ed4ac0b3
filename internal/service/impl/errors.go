package impl

import (
	"fmt"

	"portal-auth/internal/domain"
)

// Validation failures wrap domain.ErrValidation so the transport can map any
// of them to a 400 without enumerating each one.
var (
	ErrEmptyPassword   = fmt.Errorf("%w: empty password", domain.ErrValidation)
	ErrEmptyCredential = fmt.Errorf("%w: missing required field(s)", domain.ErrValidation)
	ErrInvalidEmail    = fmt.Errorf("%w: malformed email", domain.ErrValidation)
	ErrPasswordLength  = fmt.Errorf("%w: password too short", domain.ErrValidation)
)
