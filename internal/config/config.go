package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Data       DataConfig
	Redis      RedisConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig
	Worker     WorkerConfig
	R2         R2Config
}

type ServerConfig struct {
	Port string `validate:"required"`
	Env  string
}

type DataConfig struct {
	// Dir is the durable data root: jobs.sqlite3, per-job inputs, outputs.
	Dir string `validate:"required"`
	// BaseURL is the public base used to build result links.
	BaseURL string `validate:"required,url"`
}

type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int
}

type OpenRouterConfig struct {
	// APIKey may be empty; job creation is refused until it is set.
	APIKey  string
	BaseURL string `validate:"required,url"`
	Model   string `validate:"required"`
	// AttemptTimeout bounds a single delegate call so a hung backend cannot
	// block a worker indefinitely.
	AttemptTimeout time.Duration `validate:"required"`
}

type RetryConfig struct {
	// MaxAttempts is the total number of provider calls per job, not the
	// number of retries after the first.
	MaxAttempts int           `validate:"required,min=1"`
	BaseDelay   time.Duration `validate:"required"`
	MaxDelay    time.Duration `validate:"required"`
}

type WorkerConfig struct {
	Concurrency int `validate:"required,min=1"`
}

// R2Config enables the optional object-storage backend for output artifacts.
// All fields empty means outputs stay on local disk.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("data.base_url", "http://localhost:8000")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("openrouter.api_key", "")
	viper.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("openrouter.model", "google/gemini-2.5-flash-image")
	viper.SetDefault("openrouter.attempt_timeout", "180s")
	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.base_delay", "2s")
	viper.SetDefault("retry.max_delay", "60s")
	viper.SetDefault("worker.concurrency", 4)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Data: DataConfig{
			Dir:     viper.GetString("data.dir"),
			BaseURL: viper.GetString("data.base_url"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:         viper.GetString("openrouter.api_key"),
			BaseURL:        viper.GetString("openrouter.base_url"),
			Model:          viper.GetString("openrouter.model"),
			AttemptTimeout: viper.GetDuration("openrouter.attempt_timeout"),
		},
		Retry: RetryConfig{
			MaxAttempts: viper.GetInt("retry.max_attempts"),
			BaseDelay:   viper.GetDuration("retry.base_delay"),
			MaxDelay:    viper.GetDuration("retry.max_delay"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
