package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tunehub/music-api/internal/api/metrics"
	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
)

const (
	// AccessTokenCookie carries the access token for browser clients.
	AccessTokenCookie = "accessToken"

	accountContextKey = "account"
)

// AccountFromContext returns the account attached by Auth.
func AccountFromContext(c echo.Context) (*domain.Account, bool) {
	acct, ok := c.Get(accountContextKey).(*domain.Account)
	return acct, ok && acct != nil
}

// Auth authenticates the access token and attaches the caller's account to
// the context. The accessToken cookie takes precedence over the
// Authorization header.
func Auth(tokens ports.TokenIssuer, accounts ports.AccountReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := extractAccessToken(c)
			if err != nil {
				metrics.GuardRejectionsTotal.WithLabelValues("missing_token").Inc()
				return err
			}

			claims, err := tokens.Verify(raw, domain.AccessToken)
			if err != nil {
				metrics.GuardRejectionsTotal.WithLabelValues("invalid_token").Inc()
				return domain.NewUnauthenticatedError("invalid access token")
			}

			acct, err := accounts.FindByID(c.Request().Context(), claims.AccountID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					metrics.GuardRejectionsTotal.WithLabelValues("unknown_account").Inc()
					return domain.NewUnauthenticatedError("invalid access token")
				}
				metrics.GuardRejectionsTotal.WithLabelValues("error").Inc()
				return err
			}

			if acct.Blocked {
				metrics.GuardRejectionsTotal.WithLabelValues("blocked").Inc()
				return domain.ErrAccountBlocked
			}

			acct.PasswordHash = ""
			acct.RefreshToken = ""
			c.Set(accountContextKey, acct)

			return next(c)
		}
	}
}

func extractAccessToken(c echo.Context) (string, error) {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", domain.NewUnauthenticatedError("missing access token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", domain.NewUnauthenticatedError("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
