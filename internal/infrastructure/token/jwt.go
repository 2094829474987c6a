package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tunehub/music-api/internal/core/domain"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// claims is the wire form of both token kinds. Role is empty on refresh tokens.
type claims struct {
	Role domain.Role      `json:"role,omitempty"`
	Type domain.TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Config holds the secrets and lifetimes for the issuer.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// JWTIssuer implements ports.TokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewJWTIssuer builds an issuer. Access and refresh secrets must differ.
func NewJWTIssuer(cfg Config) (*JWTIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &JWTIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *JWTIssuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (i *JWTIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue mints a fresh access/refresh pair for account.
func (i *JWTIssuer) Issue(account *domain.Account) (domain.TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	access, err := i.sign(claims{
		Role: account.Role,
		Type: domain.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}, i.accessSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	// jti keeps two refresh tokens minted in the same second distinct.
	refresh, err := i.sign(claims{
		Type: domain.RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        uuid.NewString(),
		},
	}, i.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature, expiry and kind. It fails with domain.ErrTokenExpired
// on expiry and domain.ErrTokenInvalid on anything else.
func (i *JWTIssuer) Verify(tokenString string, kind domain.TokenKind) (*domain.TokenClaims, error) {
	secret := i.accessSecret
	if kind == domain.RefreshToken {
		secret = i.refreshSecret
	}

	var c claims
	tkn, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !tkn.Valid || c.Type != kind || c.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.TokenClaims{
		AccountID: c.Subject,
		Role:      c.Role,
		Kind:      c.Type,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

func (i *JWTIssuer) sign(c claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}
