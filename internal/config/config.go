// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs at startup. Every field maps to
// one environment variable; see the env tags for names and defaults.
type Config struct {
	Port   int    `env:"PORT" envDefault:"3000"`
	DBPath string `env:"DB_PATH" envDefault:"data/taskmanager.db"`

	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	JWTTTL     time.Duration `env:"JWT_TTL" envDefault:"0s"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	MailFrom       string `env:"MAIL_FROM" envDefault:"noreply@taskmanager.local"`

	AvatarMaxBytes int64 `env:"AVATAR_MAX_BYTES" envDefault:"1000000"`

	LogLevel     slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	OTelEndpoint string     `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the constraints env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.JWTTTL < 0 {
		errs = append(errs, errors.New("JWT_TTL must not be negative"))
	}
	if c.AvatarMaxBytes <= 0 {
		errs = append(errs, errors.New("AVATAR_MAX_BYTES must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
