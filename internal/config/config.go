package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all environment-driven settings for the ripple server.
type Config struct {
	AppEnv   string
	AppName  string
	AppPort  string
	LogLevel string

	MetricsPort string

	DBHost                   string
	DBPort                   string
	DBUser                   string
	DBPassword               string
	DBName                   string
	DBSSLMode                string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int

	AMQPURL      string
	CDNBaseURL   string
	OpenAIAPIKey string
	OpenAIModel  string

	AssistantUserID string
	AssistantDelay  time.Duration
}

// Load reads configuration from the environment, applying defaults where the
// variable is optional.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:          os.Getenv("APP_ENV"),
		AppName:         os.Getenv("APP_NAME"),
		AppPort:         os.Getenv("APP_PORT"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		MetricsPort:     os.Getenv("METRICS_PORT"),
		DBHost:          os.Getenv("DB_HOST"),
		DBPort:          os.Getenv("DB_PORT"),
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBName:          os.Getenv("DB_NAME"),
		DBSSLMode:       os.Getenv("DB_SSL_MODE"),
		RedisHost:       os.Getenv("REDIS_HOST"),
		RedisPort:       os.Getenv("REDIS_PORT"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		AssistantUserID: os.Getenv("ASSISTANT_USER_ID"),
	}
	if cfg.AppName == "" {
		cfg.AppName = "ripple"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.DBSSLMode == "" {
		cfg.DBSSLMode = "disable"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	var err error
	cfg.DBMaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxIdleConns, err = intEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	cfg.DBConnMaxLifetimeMinutes, err = intEnv("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB, err = intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisPoolSize, err = intEnv("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.RedisMinIdleConns, err = intEnv("REDIS_MIN_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	cfg.RedisMaxRetries, err = intEnv("REDIS_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	delayMS, err := intEnv("ASSISTANT_DELAY_MS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.AssistantDelay = time.Duration(delayMS) * time.Millisecond

	if cfg.DBHost == "" || cfg.DBPort == "" || cfg.DBUser == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required database environment variables")
	}
	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
