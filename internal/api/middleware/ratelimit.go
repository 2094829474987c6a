package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tunehub/music-api/internal/api/metrics"
)

// RateLimiter abstracts the per-client request counter (Redis).
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimit rejects requests from a client IP once the limiter's window is
// exhausted. Limiter failures are logged and the request is let through.
func RateLimit(limiter RateLimiter, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, retryAfter, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				log.Warn().Err(err).Str("ip", ip).Msg("rate limit check failed, allowing request")
				return next(c)
			}
			if !allowed {
				metrics.LoginRateLimitedTotal.Inc()
				secs := int(math.Ceil(retryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, please try again later")
			}
			return next(c)
		}
	}
}
