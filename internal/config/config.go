package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	EnvProduction = "production"

	VerificationStrict     = "strict"
	VerificationPermissive = "permissive"
)

type Config struct {
	AppPort       string `env:"APP_PORT" envDefault:"8080"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SSOSharedSecret    string        `env:"SSO_SHARED_SECRET"`
	SSOVerification    string        `env:"SSO_VERIFICATION" envDefault:"strict"`
	SSOFreshnessWindow time.Duration `env:"SSO_FRESHNESS_WINDOW" envDefault:"5m"`
	SSOFutureSkew      time.Duration `env:"SSO_FUTURE_SKEW" envDefault:"30s"`
	SSOMaxPayload      int           `env:"SSO_MAX_PAYLOAD" envDefault:"20000"`
	SSORateLimit       float64       `env:"SSO_RATE_LIMIT" envDefault:"5"`
	SSORateBurst       int           `env:"SSO_RATE_BURST" envDefault:"10"`

	CSRFSecret string `env:"CSRF_SECRET"`

	IdleLimit   time.Duration `env:"IDLE_LIMIT" envDefault:"3m"`
	IdleWarning time.Duration `env:"IDLE_WARNING" envDefault:"1m"`
	IdleEnforce bool          `env:"IDLE_ENFORCE" envDefault:"true"`

	OIDCName         string `env:"OIDC_NAME" envDefault:"oidc"`
	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
	OIDCAuthURL      string `env:"OIDC_AUTH_URL"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

// Permissive reports whether relaxed assertion checks were requested.
// It is never true in production because Validate rejects that combination.
func (c Config) Permissive() bool {
	return !c.IsProduction() && c.SSOVerification == VerificationPermissive
}

func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

func (c Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("config: APP_PORT cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is required")
	}
	if c.SSOSharedSecret == "" {
		return errors.New("config: SSO_SHARED_SECRET is required")
	}
	if c.CSRFSecret == "" {
		return errors.New("config: CSRF_SECRET is required")
	}

	switch c.SSOVerification {
	case VerificationStrict:
	case VerificationPermissive:
		if c.IsProduction() {
			return errors.New("config: SSO_VERIFICATION=permissive is not allowed in production")
		}
	default:
		return fmt.Errorf("config: unknown SSO_VERIFICATION %q", c.SSOVerification)
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: PUBLIC_BASE_URL must be an absolute url, got %q", c.PublicBaseURL)
	}

	if c.SSOFreshnessWindow <= 0 || c.SSOFutureSkew < 0 {
		return errors.New("config: SSO_FRESHNESS_WINDOW must be positive and SSO_FUTURE_SKEW non-negative")
	}
	if c.SSOMaxPayload <= 0 {
		return errors.New("config: SSO_MAX_PAYLOAD must be positive")
	}
	if c.SSORateLimit <= 0 || c.SSORateBurst <= 0 {
		return errors.New("config: SSO_RATE_LIMIT and SSO_RATE_BURST must be positive")
	}
	if c.IdleLimit <= 0 || c.IdleWarning <= 0 || c.IdleWarning >= c.IdleLimit {
		return errors.New("config: IDLE_WARNING must be positive and shorter than IDLE_LIMIT")
	}

	if c.OIDCEnabled() && (c.OIDCClientID == "" || c.OIDCRedirectURL == "") {
		return errors.New("config: OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER is set")
	}

	return nil
}
