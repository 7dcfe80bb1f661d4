package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrMissingSecret is returned when a production deployment has no signing
// secret configured.
var ErrMissingSecret = errors.New("config: JWT_SECRET must be set in production")

// devSessionSecret is only ever used outside production.
const devSessionSecret = "dev-only-session-secret-change-me"

type Config struct {
	Port       string `env:"PORT,         default=8080"`
	Env        string `env:"ENV,          default=development"`
	LogLevel   string `env:"LOG_LEVEL,    default=info"`
	LogPretty  bool   `env:"LOG_PRETTY,   default=false"`
	AppBaseURL string `env:"APP_BASE_URL, default=http://localhost:3000"`

	// Paths the access gate redirects to.
	LoginPath  string `env:"LOGIN_PATH,  default=/login"`
	LapsedPath string `env:"LAPSED_PATH, default=/subscription-lapsed"`

	Session      SessionConfig
	Tokens       TokenConfig
	Provisioning ProvisioningConfig
	Store        StoreConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Throttle     ThrottleConfig
	SMTP         SMTPConfig
	NATS         NATSConfig
	Telemetry    TelemetryConfig
	Notify       NotifyConfig
	Security     SecurityConfig
}

type SessionConfig struct {
	Secret       string        `env:"JWT_SECRET"`
	TTL          time.Duration `env:"SESSION_TTL,    default=168h"`
	CookieName   string        `env:"SESSION_COOKIE, default=session"`
	CookieSecure bool          `env:"COOKIE_SECURE,  default=false"`
}

type TokenConfig struct {
	InviteTTL time.Duration `env:"INVITE_TTL, default=48h"`
	ResetTTL  time.Duration `env:"RESET_TTL,  default=15m"`
}

type ProvisioningConfig struct {
	Secret string `env:"PROVISIONING_SECRET"`
}

type StoreConfig struct {
	Driver      string        `env:"STORE_DRIVER, default=postgres"`
	DatabaseURL string        `env:"DATABASE_URL"`
	Timeout     time.Duration `env:"DB_TIMEOUT,   default=5s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=accessd"`
}

// RedisConfig with an empty Addr disables throttling.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type ThrottleConfig struct {
	ForgotLimit  int           `env:"FORGOT_LIMIT,  default=5"`
	ForgotWindow time.Duration `env:"FORGOT_WINDOW, default=1h"`
	LoginLimit   int           `env:"LOGIN_LIMIT,   default=10"`
	LoginWindow  time.Duration `env:"LOGIN_WINDOW,  default=15m"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT, default=587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM, default=no-reply@localhost"`
}

type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX, default=access"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type NotifyConfig struct {
	Workers int `env:"NOTIFY_WORKERS, default=4"`
}

type SecurityConfig struct {
	BcryptCost int `env:"BCRYPT_COST, default=12"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionSecret returns the configured signing secret. Outside production a
// fixed development secret is used when none is set.
func (c *Config) SessionSecret() (string, error) {
	if c.Session.Secret != "" {
		return c.Session.Secret, nil
	}
	if c.IsProduction() {
		return "", ErrMissingSecret
	}
	return devSessionSecret, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.SessionSecret(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres store"))
		}
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("config: MONGO_URI is required for the mongo store"))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("config: the memory store cannot be used in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.IsProduction() && c.Provisioning.Secret == "" {
		errs = append(errs, errors.New("config: PROVISIONING_SECRET must be set in production"))
	}
	if c.Session.TTL <= 0 || c.Tokens.InviteTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		errs = append(errs, errors.New("config: SESSION_TTL, INVITE_TTL and RESET_TTL must be positive"))
	}
	return errors.Join(errs...)
}
