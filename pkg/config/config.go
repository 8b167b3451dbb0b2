package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:db.sqlite"`
	AppEnv      string `env:"APP_ENV"      envDefault:"local"`
	BaseURL     string `env:"BASE_URL"     envDefault:"http://localhost:8080"`
	JWTSecret   string `env:"JWT_SECRET"   envDefault:"secret"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	DefaultRotationInterval time.Duration `env:"DEFAULT_ROTATION_INTERVAL" envDefault:"5s"`
	FirstRotationDelay      time.Duration `env:"FIRST_ROTATION_DELAY"      envDefault:"1s"`
	SlugMaxAttempts         int           `env:"SLUG_MAX_ATTEMPTS"         envDefault:"20"`
	SlugRaceRetries         int           `env:"SLUG_RACE_RETRIES"         envDefault:"3"`
	FeedBuffer              int           `env:"FEED_BUFFER"               envDefault:"64"`

	ModerationURL       string `env:"MODERATION_URL"`
	ModerationAPIUser   string `env:"MODERATION_API_USER"`
	ModerationAPISecret string `env:"MODERATION_API_SECRET"`
}

// ModerationEnabled reports whether Sightengine credentials are set.
func (c *Config) ModerationEnabled() bool {
	return c.ModerationAPIUser != "" && c.ModerationAPISecret != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SlugMaxAttempts < 1 {
		return nil, fmt.Errorf("SLUG_MAX_ATTEMPTS must be positive, got %d", cfg.SlugMaxAttempts)
	}
	if cfg.DefaultRotationInterval <= 0 {
		return nil, fmt.Errorf("DEFAULT_ROTATION_INTERVAL must be positive, got %s", cfg.DefaultRotationInterval)
	}
	return &cfg, nil
}
