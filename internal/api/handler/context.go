package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/tunehub/music-api/internal/api/middleware"
	"github.com/tunehub/music-api/internal/core/domain"
)

// ctxAccount returns the account attached by the Auth middleware. Its
// absence means the route was wired without the guard.
func ctxAccount(c echo.Context) (*domain.Account, error) {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return acct, nil
}
