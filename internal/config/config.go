package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

type Config struct {
	Port            string
	ServiceVersion  string
	PostgresURL     string
	PostgresSchema  string
	RedisAddr       string
	KafkaBrokers    []string
	ChatAPIURL      string
	ChatAPIKey      string
	ChatModel       string
	EmailServiceURL string
	SessionTTL      time.Duration
	CartTTL         time.Duration
	CartIdleTimeout time.Duration
	IdentityTTL     time.Duration
	Currency        currency.Unit
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ServiceVersion:  getEnv("SERVICE_VERSION", "0.1.0"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		PostgresSchema:  getEnv("POSTGRES_SCHEMA", "storefront"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		ChatAPIURL:      getEnv("CHAT_API_URL", "https://api.openai.com/v1"),
		ChatAPIKey:      os.Getenv("CHAT_API_KEY"),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-3.5-turbo"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CartTTL, err = getDuration("CART_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CartIdleTimeout, err = getDuration("CART_IDLE_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IdentityTTL, err = getDuration("IDENTITY_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}

	code := getEnv("STORE_CURRENCY", "USD")
	if cfg.Currency, err = currency.ParseISO(code); err != nil {
		return nil, fmt.Errorf("STORE_CURRENCY %q is not an ISO 4217 code: %w", code, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return errors.New("POSTGRES_URL environment variable is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.CartIdleTimeout <= 0 {
		return errors.New("CART_IDLE_TIMEOUT must be positive")
	}
	return nil
}

// DatabaseURL returns PostgresURL with search_path pinned to PostgresSchema.
func (c *Config) DatabaseURL() (string, error) {
	u, err := url.Parse(c.PostgresURL)
	if err != nil {
		return "", fmt.Errorf("parse POSTGRES_URL: %w", err)
	}

	q := u.Query()
	q.Set("search_path", c.PostgresSchema)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// NotifierConfig configures the order notification worker.
type NotifierConfig struct {
	ServiceVersion  string
	KafkaBrokers    []string
	EmailServiceURL string
}

func LoadNotifier() (*NotifierConfig, error) {
	cfg := &NotifierConfig{
		ServiceVersion:  getEnv("SERVICE_VERSION", "0.1.0"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return nil, errors.New("KAFKA_BROKERS environment variable is required")
	}
	cfg.KafkaBrokers = strings.Split(brokers, ",")

	if cfg.EmailServiceURL == "" {
		return nil, errors.New("EMAIL_SERVICE_URL environment variable is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
