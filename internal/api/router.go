package api

import (
	"net"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/tunehub/music-api/docs"
	"github.com/tunehub/music-api/internal/api/handler"
	"github.com/tunehub/music-api/internal/api/middleware"
	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth         ports.AuthService
	Accounts     ports.AccountReader
	Tokens       ports.TokenIssuer
	LoginLimiter middleware.RateLimiter
	HealthChecks map[string]handler.HealthCheck
	Cookies      handler.CookieSettings
	Log          zerolog.Logger
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured.
	TrustedProxies []*net.IPNet
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)
	e.IPExtractor = clientIPExtractor(d.TrustedProxies)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	authHandler := handler.NewAuthHandler(d.Auth, d.Cookies)
	accountHandler := handler.NewAccountHandler(d.Accounts)
	requireAuth := middleware.Auth(d.Tokens, d.Accounts)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	if d.LoginLimiter != nil {
		auth.POST("/login", authHandler.Login, middleware.RateLimit(d.LoginLimiter, d.Log))
	} else {
		auth.POST("/login", authHandler.Login)
	}
	auth.POST("/logout", authHandler.Logout, requireAuth)
	auth.POST("/refresh-token", authHandler.RefreshToken)

	// --- Account routes ---
	e.GET("/users/me", accountHandler.Me, requireAuth)

	admin := e.Group("/admin", requireAuth, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/accounts/:id", accountHandler.GetAccount)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler(d.HealthChecks)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	// --- Observability ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// clientIPExtractor resolves c.RealIP. Without trusted proxies the TCP peer
// is used and forwarding headers are ignored.
func clientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, ipnet := range trusted {
		opts = append(opts, echo.TrustIPRange(ipnet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
