// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read when present; real environment variables win.
const DefaultEnvFile = ".env"

// LoadAPIConfig constructs an APIConfig from the environment and an optional
// dotenv file, applying typed defaults and validation.
func LoadAPIConfig(envFile string) (APIConfig, error) {
	v := newViper(envFile)
	setAPIDefaults(v)
	bindEnvs(v, apiKeys)

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return APIConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

func newViper(envFile string) *viper.Viper {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}
	v := viper.New()
	v.AutomaticEnv()
	return v
}

func setAPIDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("api_addr", ":4000")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_driver", StoreMemory)
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "skillsync.db")
	v.SetDefault("db_migrations_dir", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("blob_dir", "data/files")
	v.SetDefault("max_upload_bytes", 25<<20)
	v.SetDefault("resubmission_limit", 3)
	v.SetDefault("mentor_team_limit", 5)
	v.SetDefault("chat_history_limit", 200)
	v.SetDefault("chat_max_message_runes", 2000)
	v.SetDefault("chat_poll_interval", 5*time.Second)
	v.SetDefault("team_lock_ttl", 10*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

var apiKeys = []string{
	"app_env",
	"api_addr",
	"log_level",
	"store_driver",
	"database_url",
	"sqlite_path",
	"db_migrations_dir",
	"jwt_secret",
	"redis_addr",
	"redis_password",
	"redis_db",
	"blob_dir",
	"max_upload_bytes",
	"resubmission_limit",
	"mentor_team_limit",
	"chat_history_limit",
	"chat_max_message_runes",
	"chat_poll_interval",
	"team_lock_ttl",
	"shutdown_timeout",
}

// bindEnvs maps each lower-case key to its upper-case environment variable.
func bindEnvs(v *viper.Viper, keys []string) {
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
