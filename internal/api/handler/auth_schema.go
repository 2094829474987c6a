package handler

import (
	"time"

	"github.com/tunehub/music-api/internal/core/domain"
)

// registerRequest is the body of POST /auth/register.
type registerRequest struct {
	Name     string `json:"name"     validate:"required"`
	Username string `json:"username" validate:"required,excludes=@"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role"`
}

// loginRequest is the body of POST /auth/login. Either email or username
// identifies the account; email wins when both are sent. Usernames never
// contain '@', so the identifier alone tells the two apart.
type loginRequest struct {
	Email    string `json:"email"    validate:"required_without=Username,omitempty,email"`
	Username string `json:"username" validate:"required_without=Email,excludes=@"`
	Password string `json:"password" validate:"required"`
}

func (r loginRequest) identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// refreshRequest is the optional body of POST /auth/refresh-token for
// clients that do not send cookies.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type loginResponse struct {
	tokenResponse
	User domain.AccountView `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toTokenResponse(p domain.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
