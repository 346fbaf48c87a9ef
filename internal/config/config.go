package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`

	SMTPHost           string `env:"SMTP_HOST"`
	SMTPPort           int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser           string `env:"SMTP_USER"`
	SMTPPass           string `env:"SMTP_PASS"`
	SMTPFrom           string `env:"SMTP_FROM"`
	SMTPTimeoutSeconds int    `env:"SMTP_TIMEOUT_SECONDS" envDefault:"15"`

	TokenSecret     string `env:"TOKEN_SECRET"`
	TokenTTLMinutes int    `env:"TOKEN_TTL_MINUTES" envDefault:"240"`
	CodeTTLSeconds  int    `env:"CODE_TTL_SECONDS" envDefault:"600"`

	AllowAdminSelfRegister bool   `env:"ALLOW_ADMIN_SELF_REGISTER" envDefault:"false"`
	AuthTestMode           bool   `env:"AUTH_TEST_MODE" envDefault:"false"`
	AuthTestToken          string `env:"AUTH_TEST_TOKEN"`

	OTPRequestLimit         int `env:"OTP_REQUEST_LIMIT" envDefault:"5"`
	OTPRequestWindowSeconds int `env:"OTP_REQUEST_WINDOW_SECONDS" envDefault:"60"`

	MaxBodyBytes       int64    `env:"MAX_BODY_BYTES" envDefault:"26214400"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c *Config) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

func (c *Config) OTPRequestWindow() time.Duration {
	return time.Duration(c.OTPRequestWindowSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.CodeTTLSeconds <= 0 {
		return fmt.Errorf("CODE_TTL_SECONDS must be positive")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be positive")
	}
	if c.AuthTestMode && c.AuthTestToken == "" {
		return fmt.Errorf("AUTH_TEST_TOKEN must be set when AUTH_TEST_MODE is enabled")
	}

	if isProduction {
		if err := validateSecret("TOKEN_SECRET", c.TokenSecret); err != nil {
			return err
		}
		if c.AuthTestMode {
			return fmt.Errorf("AUTH_TEST_MODE must not be enabled in production")
		}

		if c.SMTPHost == "" || c.SMTPFrom == "" {
			log.Warn().Msg("SMTP_HOST or SMTP_FROM is empty in production: passcodes and broadcasts cannot be delivered")
		}
		if c.AllowAdminSelfRegister {
			log.Warn().Msg("ALLOW_ADMIN_SELF_REGISTER is enabled in production: any address can bootstrap an admin account")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	} else if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
