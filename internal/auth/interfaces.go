package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/database/models"
)

// Authenticator defines the account workflows exposed over HTTP.
type Authenticator interface {
	Signup(ctx context.Context, caller *models.User, in AccountInput, reg Registration) (string, error)
	VerifyEmail(ctx context.Context, nonce, token string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, nonce, password, confirm string) (*AuthResponse, error)
	UpdatePassword(ctx context.Context, principal *models.User, current, password, confirm string) (*AuthResponse, error)
	Profile(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateMe(ctx context.Context, principal *models.User, in UpdateMeInput) (*models.User, error)
	Deactivate(ctx context.Context, principal *models.User) error
}

// PrincipalStore loads the account behind a verified token.
type PrincipalStore interface {
	GetActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(user *models.User) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator  = (*Service)(nil)
	_ PrincipalStore = (*Service)(nil)
	_ TokenService   = (*JWTService)(nil)
)
