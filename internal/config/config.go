// Package config loads the server configuration.
//
// Values are resolved in order: defaults, the YAML file, a .env file, then
// LEXAUTH_* environment variables. Secrets have no YAML key and can only come
// from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/internal/logging"
	"github.com/MrEthical07/lexauth/mail"
	"github.com/MrEthical07/lexauth/middleware"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEXAUTH_"

// Config is the root server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Mail     MailConfig     `yaml:"mail"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  logging.Config `yaml:"logging"`

	// Auth configures the engine itself.
	Auth lexauth.Config `yaml:"auth"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string                     `yaml:"addr"`
	ReadTimeout     time.Duration              `yaml:"read_timeout"`
	WriteTimeout    time.Duration              `yaml:"write_timeout"`
	ShutdownTimeout time.Duration              `yaml:"shutdown_timeout"`
	RateLimit       middleware.RateLimitConfig `yaml:"rate_limit"`
	// TrustedProxies lists CIDR ranges whose X-Forwarded-For is honoured.
	// Empty means the client IP is the connection's remote address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// PostgresConfig locates the relational store.
type PostgresConfig struct {
	DSN     string `yaml:"-"`
	Migrate bool   `yaml:"migrate"`
	Seed    bool   `yaml:"seed"`
}

// RedisConfig locates the session and limiter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// MailConfig selects the email transport: "log" or "smtp".
type MailConfig struct {
	Driver string          `yaml:"driver"`
	SMTP   mail.SMTPConfig `yaml:"smtp"`
}

// AuditConfig selects where audit events go besides the metrics collector.
type AuditConfig struct {
	Log       bool   `yaml:"log"`
	AMQPURL   string `yaml:"-"`
	AMQPQueue string `yaml:"amqp_queue"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration suitable for local runs once the JWT
// secret is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: middleware.RateLimitConfig{
				RequestsPerSecond: 20,
				Burst:             40,
				IdleTTL:           10 * time.Minute,
			},
		},
		Postgres: PostgresConfig{Migrate: true, Seed: true},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Mail:     MailConfig{Driver: "log", SMTP: mail.SMTPConfig{Port: 587}},
		Audit:    AuditConfig{Log: true},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
		Logging:  logging.DefaultConfig(),
		Auth:     lexauth.DefaultConfig(),
	}
}

// Load reads path (skipped when empty), then envFile (skipped when missing),
// applies environment overrides and validates the result.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		// Variables already set in the process win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &cfg.Server.Addr)
	if v, ok := lookup(EnvPrefix + "TRUSTED_PROXIES"); ok {
		cfg.Server.TrustedProxies = nil
		for _, cidr := range strings.Split(v, ",") {
			if cidr = strings.TrimSpace(cidr); cidr != "" {
				cfg.Server.TrustedProxies = append(cfg.Server.TrustedProxies, cidr)
			}
		}
	}
	str("DATABASE_URL", &cfg.Postgres.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)

	str("JWT_SECRET", &cfg.Auth.JWT.Secret)
	str("JWT_PUBLIC_KEY", &cfg.Auth.JWT.PublicKey)
	str("JWT_SIGNING_METHOD", &cfg.Auth.JWT.SigningMethod)
	str("FIELD_ENCRYPTION_SECRET", &cfg.Auth.FieldEncryption.Secret)
	str("FRONTEND_URL", &cfg.Auth.PasswordReset.FrontendURL)
	boolean("ALLOW_REGISTRATION", &cfg.Auth.Accounts.AllowRegistration)

	str("MAIL_DRIVER", &cfg.Mail.Driver)
	str("SMTP_HOST", &cfg.Mail.SMTP.Host)
	integer("SMTP_PORT", &cfg.Mail.SMTP.Port)
	str("SMTP_USERNAME", &cfg.Mail.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.Mail.SMTP.Password)
	str("SMTP_FROM", &cfg.Mail.SMTP.From)
	boolean("SMTP_REQUIRE_TLS", &cfg.Mail.SMTP.RequireTLS)

	str("AMQP_URL", &cfg.Audit.AMQPURL)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, "server.rate_limit.requests_per_second must be >= 0")
	}
	for _, cidr := range c.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Sprintf("server.trusted_proxies: %q is not a CIDR range", cidr))
		}
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, EnvPrefix+"DATABASE_URL is required")
	}
	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}

	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			errs = append(errs, "mail.smtp.host and mail.smtp.from are required for the smtp driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail.driver %q is not one of log, smtp", c.Mail.Driver))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, "auth: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
