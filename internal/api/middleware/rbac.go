package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/tunehub/music-api/internal/api/metrics"
	"github.com/tunehub/music-api/internal/core/domain"
)

// RBAC enforces role-based access control. It must run after Auth.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		if r.Valid() {
			allowed[r] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct, ok := AccountFromContext(c)
			if !ok {
				return domain.ErrUnauthenticated
			}
			if _, ok := allowed[acct.Role]; !ok {
				metrics.GuardRejectionsTotal.WithLabelValues("role").Inc()
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
