package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth      AuthConfig
	Cookie    CookieConfig
	RateLimit RateLimitConfig
	Mongo     MongoConfig
	Redis     RedisConfig
}

type AuthConfig struct {
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,  required"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET, required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL,     default=15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL,    default=168h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER,         default=music-api"`
	LockoutThreshold   int           `env:"LOCKOUT_THRESHOLD,    default=5"`
	LockoutDuration    time.Duration `env:"LOCKOUT_DURATION,     default=10m"`
	BcryptCost         int           `env:"BCRYPT_COST,          default=10"`
}

type CookieConfig struct {
	Secure   bool   `env:"COOKIE_SECURE,   default=true"`
	SameSite string `env:"COOKIE_SAMESITE, default=lax"`
	Domain   string `env:"COOKIE_DOMAIN"`
}

type RateLimitConfig struct {
	LoginLimit  int           `env:"LOGIN_RATE_LIMIT,  default=10"`
	LoginWindow time.Duration `env:"LOGIN_RATE_WINDOW, default=15m"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed when
	// resolving the client IP. Empty means the TCP peer address is used.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// TrustedProxyRanges parses TrustedProxies.
func (c RateLimitConfig) TrustedProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		ranges = append(ranges, ipnet)
	}
	return ranges, nil
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=music_platform"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// SameSiteMode maps COOKIE_SAMESITE onto http.SameSite.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Validate rejects settings that would weaken token separation or that the
// lockout and hashing layers cannot honour.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}
	if c.Auth.LockoutThreshold < 1 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD must be at least 1"))
	}
	if c.Auth.LockoutDuration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range [4,31]", c.Auth.BcryptCost))
	}
	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		errs = append(errs, errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE=true"))
	}
	if _, err := c.RateLimit.TrustedProxyRanges(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
