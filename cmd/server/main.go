// @title                       Music Platform Auth API
// @version                     1.0
// @description                 Registration, login, session rotation and access control for the music platform.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tunehub/music-api/internal/api"
	"github.com/tunehub/music-api/internal/api/handler"
	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/service"
	mongostore "github.com/tunehub/music-api/internal/infrastructure/db/mongo"
	redisstore "github.com/tunehub/music-api/internal/infrastructure/db/redis"
	"github.com/tunehub/music-api/internal/infrastructure/security"
	"github.com/tunehub/music-api/internal/infrastructure/token"
	"github.com/tunehub/music-api/internal/pkg/config"
	"github.com/tunehub/music-api/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "music-api",
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mongoClient, db, err := mongostore.Connect(startCtx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "music-api",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	accounts := mongostore.NewAccountRepository(db)
	if err := accounts.EnsureIndexes(startCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to create account indexes")
	}

	rdb, err := redisstore.Connect(startCtx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	issuer, err := token.NewJWTIssuer(token.Config{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		Issuer:        cfg.Auth.TokenIssuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token issuer")
	}

	trustedProxies, err := cfg.RateLimit.TrustedProxyRanges()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	authService := service.NewAuthService(
		accounts,
		security.NewBcryptHasher(cfg.Auth.BcryptCost),
		issuer,
		domain.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration),
		logger.Component("auth"),
	)

	e := api.NewRouter(api.Deps{
		Auth:         authService,
		Accounts:     accounts,
		Tokens:       issuer,
		LoginLimiter: redisstore.NewLoginLimiter(rdb, cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow),
		HealthChecks: map[string]handler.HealthCheck{
			"mongodb": handler.MongoCheck(db),
			"redis":   handler.RedisCheck(rdb),
		},
		Cookies: handler.CookieSettings{
			Secure:     cfg.Cookie.Secure,
			SameSite:   cfg.Cookie.SameSiteMode(),
			Domain:     cfg.Cookie.Domain,
			AccessTTL:  issuer.AccessTTL(),
			RefreshTTL: issuer.RefreshTTL(),
		},
		Log:            logger.Component("http"),
		TrustedProxies: trustedProxies,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close Redis")
	}
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to disconnect MongoDB")
	}

	log.Info().Msg("server stopped")
}
