package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Storage drivers accepted by STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment         string        `mapstructure:"app_env"`
	Addr                string        `mapstructure:"api_addr"`
	LogLevel            string        `mapstructure:"log_level"`
	StoreDriver         string        `mapstructure:"store_driver"`
	DatabaseURL         string        `mapstructure:"database_url"`
	SQLitePath          string        `mapstructure:"sqlite_path"`
	MigrationsDir       string        `mapstructure:"db_migrations_dir"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	RedisAddr           string        `mapstructure:"redis_addr"`
	RedisPassword       string        `mapstructure:"redis_password"`
	RedisDB             int           `mapstructure:"redis_db"`
	BlobDir             string        `mapstructure:"blob_dir"`
	MaxUploadBytes      int64         `mapstructure:"max_upload_bytes"`
	ResubmissionLimit   int           `mapstructure:"resubmission_limit"`
	MentorTeamLimit     int           `mapstructure:"mentor_team_limit"`
	ChatHistoryLimit    int           `mapstructure:"chat_history_limit"`
	ChatMaxMessageRunes int           `mapstructure:"chat_max_message_runes"`
	ChatPollInterval    time.Duration `mapstructure:"chat_poll_interval"`
	TeamLockTTL         time.Duration `mapstructure:"team_lock_ttl"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate ensures required fields are present and consistent.
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("API_ADDR is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.BlobDir == "" {
		return errors.New("BLOB_DIR is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ResubmissionLimit < 0 || c.MentorTeamLimit < 0 {
		return errors.New("RESUBMISSION_LIMIT and MENTOR_TEAM_LIMIT must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level.
func (c APIConfig) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// UsesRedis reports whether a shared Redis backs locks, relay and rate limiting.
func (c APIConfig) UsesRedis() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", raw)
	}
	return level, nil
}
