// Package config loads backend settings from .env, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when SAPEX_CONFIG is unset.
const DefaultPath = "config.yaml"

// Storage backends.
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	Backend          string        `yaml:"backend"`
	DatabaseURL      string        `yaml:"databaseURL"`
	RedisAddr        string        `yaml:"redisAddr"`
	RedisPassword    string        `yaml:"redisPassword"`
	FirestoreProject string        `yaml:"firestoreProject"`
	HTTPAddr         string        `yaml:"httpAddr"`
	JWTSecret        string        `yaml:"jwtSecret"`
	TokenTTL         time.Duration `yaml:"tokenTTL"`
	TelegramToken    string        `yaml:"telegramToken"`
	CalendarID       string        `yaml:"calendarID"`
	// CalendarCredentials is a service-account JSON document.
	CalendarCredentials string        `yaml:"calendarCredentials"`
	LogLevel            string        `yaml:"logLevel"`
	MatchInterval       time.Duration `yaml:"matchInterval"`
}

func defaults() Config {
	return Config{
		Backend:       BackendPostgres,
		DatabaseURL:   "host=localhost user=user password=password dbname=sapexdb port=5432 sslmode=disable",
		RedisAddr:     "localhost:6380",
		HTTPAddr:      ":8080",
		TokenTTL:      72 * time.Hour,
		CalendarID:    "primary",
		LogLevel:      "info",
		MatchInterval: 5 * time.Second,
	}
}

// Load reads .env (if present), then the YAML file at path, then
// environment overrides. An empty path means SAPEX_CONFIG or DefaultPath;
// a missing file at the default location is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	explicit := path != ""
	if !explicit {
		if v := os.Getenv("SAPEX_CONFIG"); v != "" {
			path, explicit = v, true
		} else {
			path = DefaultPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SAPEX_BACKEND":        &cfg.Backend,
		"DATABASE_URL":         &cfg.DatabaseURL,
		"REDIS_ADDR":           &cfg.RedisAddr,
		"REDIS_PASSWORD":       &cfg.RedisPassword,
		"FIRESTORE_PROJECT":    &cfg.FirestoreProject,
		"HTTP_ADDR":            &cfg.HTTPAddr,
		"JWT_SECRET":           &cfg.JWTSecret,
		"TELEGRAM_BOT_TOKEN":   &cfg.TelegramToken,
		"CALENDAR_ID":          &cfg.CalendarID,
		"CALENDAR_CREDENTIALS": &cfg.CalendarCredentials,
		"LOG_LEVEL":            &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":      &cfg.TokenTTL,
		"MATCH_INTERVAL": &cfg.MatchInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks the fields the selected backend needs.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("databaseURL is required for the postgres backend"))
		}
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redisAddr is required for the postgres backend"))
		}
	case BackendFirestore:
		if c.FirestoreProject == "" {
			errs = append(errs, errors.New("firestoreProject is required for the firestore backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("httpAddr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwtSecret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("tokenTTL must be positive"))
	}
	if c.MatchInterval <= 0 {
		errs = append(errs, errors.New("matchInterval must be positive"))
	}
	return errors.Join(errs...)
}
