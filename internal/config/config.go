package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Quiz     QuizConfig     `mapstructure:"quiz" validate:"required"`
	Notify   NotifyConfig   `mapstructure:"notify" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// RequestTimeout bounds every HTTP request except event streams.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetime is used when minting tokens with taskctl.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLMConfig selects the structured-output provider and carries its credentials.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" validate:"required,oneof=gemini anthropic openai"`
	Model           string        `mapstructure:"model"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" validate:"required_if=Provider anthropic"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
}

// TaskConfig tunes the background task dispatcher.
type TaskConfig struct {
	// Store selects the task record backend.
	Store                  string         `mapstructure:"store" validate:"required,oneof=postgres dynamodb"`
	WorkerCount            int            `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize              int            `mapstructure:"queue_size" validate:"gt=0"`
	MaxAttempts            int            `mapstructure:"max_attempts" validate:"gt=0"`
	BackoffBase            time.Duration  `mapstructure:"backoff_base" validate:"gt=0"`
	BackoffFactor          int            `mapstructure:"backoff_factor" validate:"gte=1"`
	StuckTaskAge           time.Duration  `mapstructure:"stuck_task_age" validate:"gt=0"`
	StuckTaskCheckInterval time.Duration  `mapstructure:"stuck_task_check_interval" validate:"gt=0"`
	DynamoDB               DynamoDBConfig `mapstructure:"dynamodb"`
}

// DynamoDBConfig is only read when Task.Store is "dynamodb".
type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// QuizConfig holds the quiz round constants.
type QuizConfig struct {
	Length   int `mapstructure:"length" validate:"gt=0"`
	RetryCap int `mapstructure:"retry_cap" validate:"gte=0"`
}

// NotifyConfig selects where relay messages are published.
type NotifyConfig struct {
	Backend string        `mapstructure:"backend" validate:"required,oneof=memory kafka"`
	Brokers string        `mapstructure:"brokers" validate:"required_if=Backend kafka"`
	Topic   string        `mapstructure:"topic" validate:"required_if=Backend kafka"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}
