package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tunehub/music-api/internal/api/metrics"
	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	cookies     CookieSettings
}

func NewAuthHandler(authService ports.AuthService, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// Register creates a new account.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account registration details"
// @Success      201   {object}  domain.AccountView
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	view, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues(string(view.Role)).Inc()
	return c.JSON(http.StatusCreated, view)
}

// Login verifies credentials and opens a session.
//
// @Summary      Login
// @Description  Sets accessToken and refreshToken cookies and returns the same pair in the body.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(string(domain.KindValidation)).Inc()
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.identifier(), req.Password)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	h.cookies.setSession(c, res.Tokens)
	return c.JSON(http.StatusOK, loginResponse{
		tokenResponse: toTokenResponse(res.Tokens),
		User:          res.Account,
	})
}

// Logout revokes the caller's refresh token and clears the session cookies.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	acct, err := ctxAccount(c)
	if err != nil {
		return err
	}

	if err := h.authService.Logout(c.Request().Context(), acct.ID); err != nil {
		return err
	}

	h.cookies.clearSession(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// RefreshToken exchanges a refresh token for a new pair. The refreshToken
// cookie takes precedence over the body.
//
// @Summary      Rotate tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token for cookie-less clients"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	presented := ""
	if ck, err := c.Cookie(RefreshTokenCookie); err == nil {
		presented = ck.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		presented = req.RefreshToken
	}

	pair, err := h.authService.Refresh(c.Request().Context(), presented)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}

	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	h.cookies.setSession(c, *pair)
	return c.JSON(http.StatusOK, toTokenResponse(*pair))
}

// resultLabel maps err to a low-cardinality metric label.
func resultLabel(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return string(de.Kind)
	}
	return "error"
}
