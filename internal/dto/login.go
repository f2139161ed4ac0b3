package dto

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MFALoginRequest struct {
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

// LoginResponse carries either a full token pair with the sanitized profile
// or, for MFA-enabled accounts, an intermediate token and nothing else.
type LoginResponse struct {
	User         *UserProfile `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	ExpiresIn    int64        `json:"expiresIn,omitempty"`
	RequiresMFA  bool         `json:"requiresMfa,omitempty"`
	MFAToken     string       `json:"mfaToken,omitempty"`
}
