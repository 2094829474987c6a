package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tunehub/music-api/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindInvalidCredentials: http.StatusUnauthorized,
	domain.KindAccountLocked:      http.StatusForbidden,
	domain.KindUnauthenticated:    http.StatusUnauthorized,
	domain.KindInvalidToken:       http.StatusUnauthorized,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindConflict:           http.StatusConflict,
	domain.KindNotFound:           http.StatusNotFound,
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<kind>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, rate limiting, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{
			Error: fmt.Sprintf("%v", he.Message),
			Code:  httpErrorCode(he.Code),
		}
	}

	var de *domain.Error
	if errors.As(err, &de) {
		if status, ok := kindStatus[de.Kind]; ok {
			if de.Kind == domain.KindAccountLocked && !de.Until.IsZero() {
				c.Response().Header().Set("Retry-After", retryAfterSeconds(time.Until(de.Until)))
			}
			return status, errorResponse{Error: de.Message, Code: string(de.Kind)}
		}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{
		Error: "internal server error",
		Code:  string(domain.KindInternal),
	}
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusBadRequest:
		return string(domain.KindValidation)
	default:
		return "http_" + strconv.Itoa(status)
	}
}

func retryAfterSeconds(d time.Duration) string {
	if d < time.Second {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
