package ports

import (
	"context"

	"github.com/tunehub/music-api/internal/core/domain"
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
	Role     string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens  domain.TokenPair
	Account domain.AccountView
}

// AuthService is the session manager: registration, login, logout and refresh.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.AccountView, error)
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	Logout(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

// PasswordHasher hashes and verifies credentials with a slow one-way function.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenIssuer mints and verifies signed tokens. No other component parses claims.
type TokenIssuer interface {
	Issue(account *domain.Account) (domain.TokenPair, error)
	Verify(token string, kind domain.TokenKind) (*domain.TokenClaims, error)
}
