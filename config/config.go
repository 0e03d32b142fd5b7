package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	SourcesFile string `mapstructure:"SOURCES_FILE"`

	// Store selects the idempotency and retry backing store: memory or redis
	Store         string `mapstructure:"STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RetryMaxAttempts int     `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelayMs int     `mapstructure:"RETRY_BASE_DELAY_MS"`
	RetryMaxDelayMs  int     `mapstructure:"RETRY_MAX_DELAY_MS"`
	RetryMultiplier  float64 `mapstructure:"RETRY_MULTIPLIER"`
	RetryJitter      float64 `mapstructure:"RETRY_JITTER"`
	RetryPollSeconds int     `mapstructure:"RETRY_POLL_SECONDS"`
	RetryBatchSize   int     `mapstructure:"RETRY_BATCH_SIZE"`

	BreakerFailureThreshold int `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerSuccessThreshold int `mapstructure:"BREAKER_SUCCESS_THRESHOLD"`
	BreakerOpenSeconds      int `mapstructure:"BREAKER_OPEN_SECONDS"`

	IdempotencyTTLHours    int `mapstructure:"IDEMPOTENCY_TTL_HOURS"`
	IdempotencyLockSeconds int `mapstructure:"IDEMPOTENCY_LOCK_SECONDS"`
	IdempotencyMaxRetries  int `mapstructure:"IDEMPOTENCY_MAX_RETRIES"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("SOURCES_FILE", "sources.yaml")
	viper.SetDefault("STORE", "memory")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("RETRY_MAX_ATTEMPTS", 5)
	viper.SetDefault("RETRY_BASE_DELAY_MS", 1000)
	viper.SetDefault("RETRY_MAX_DELAY_MS", 300000)
	viper.SetDefault("RETRY_MULTIPLIER", 2.0)
	viper.SetDefault("RETRY_JITTER", 0.3)
	viper.SetDefault("RETRY_POLL_SECONDS", 5)
	viper.SetDefault("RETRY_BATCH_SIZE", 25)
	viper.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	viper.SetDefault("BREAKER_SUCCESS_THRESHOLD", 2)
	viper.SetDefault("BREAKER_OPEN_SECONDS", 30)
	viper.SetDefault("IDEMPOTENCY_TTL_HOURS", 24)
	viper.SetDefault("IDEMPOTENCY_LOCK_SECONDS", 30)
	viper.SetDefault("IDEMPOTENCY_MAX_RETRIES", 3)

	// A missing .env is fine, the defaults and environment cover everything
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}
