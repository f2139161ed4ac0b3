package service

import (
	"context"

	"portal-auth/internal/domain"
	"portal-auth/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.RegisterResponse, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResponse, error)
	CompleteMFALogin(ctx context.Context, r dto.MFALoginRequest, ip, ua string) (*dto.LoginResponse, error)
	Logout(ctx context.Context, userID domain.UserID, refreshToken string) error
	VerifyEmail(ctx context.Context, token string) (email string, err error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}
