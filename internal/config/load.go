package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TECHTREE"

// keys without defaults still have to be known to viper for env lookups to
// reach Unmarshal.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"llm.model",
	"llm.gemini_api_key",
	"llm.anthropic_api_key",
	"llm.openai_api_key",
	"notify.brokers",
	"notify.topic",
	"task.dynamodb.table",
	"task.dynamodb.region",
	"task.dynamodb.endpoint",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.token_lifetime", 24*time.Hour)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)

	v.SetDefault("task.store", "postgres")
	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.backoff_base", 5*time.Minute)
	v.SetDefault("task.backoff_factor", 4)
	v.SetDefault("task.stuck_task_age", 30*time.Minute)
	v.SetDefault("task.stuck_task_check_interval", 5*time.Minute)
	v.SetDefault("task.dynamodb.table", "techtree_tasks")
	v.SetDefault("task.dynamodb.region", "us-east-1")

	v.SetDefault("quiz.length", 5)
	v.SetDefault("quiz.retry_cap", 1)

	v.SetDefault("notify.backend", "memory")
	v.SetDefault("notify.topic", "techtree.notifications")
	v.SetDefault("notify.timeout", 5*time.Second)
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/techtree")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags on cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
