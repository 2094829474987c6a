package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tunehub/music-api/internal/api/middleware"
	"github.com/tunehub/music-api/internal/core/domain"
)

// RefreshTokenCookie carries the refresh token for browser clients.
const RefreshTokenCookie = "refreshToken"

// CookieSettings controls the attributes of the session cookies.
type CookieSettings struct {
	Secure     bool
	SameSite   http.SameSite
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s CookieSettings) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: s.SameSite,
	}
}

func (s CookieSettings) setSession(c echo.Context, p domain.TokenPair) {
	c.SetCookie(s.cookie(middleware.AccessTokenCookie, p.AccessToken, s.AccessTTL))
	c.SetCookie(s.cookie(RefreshTokenCookie, p.RefreshToken, s.RefreshTTL))
}

func (s CookieSettings) clearSession(c echo.Context) {
	for _, name := range []string{middleware.AccessTokenCookie, RefreshTokenCookie} {
		ck := s.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		c.SetCookie(ck)
	}
}
