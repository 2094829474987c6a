package domain

import "time"

// TokenKind distinguishes access from refresh tokens.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenClaims is the verified content of a token.
type TokenClaims struct {
	AccountID string
	Role      Role
	Kind      TokenKind
	ExpiresAt time.Time
}
