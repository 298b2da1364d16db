package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrMalformedConfig is returned when required connection parameters are missing or invalid.
var ErrMalformedConfig = errors.New("malformed configuration")

type Config struct {
	App    AppConfig
	Redis  RedisConfig
	Store  StoreConfig
	Events EventsConfig
}

type AppConfig struct {
	Port               string `validate:"required"`
	Environment        string
	LogFilePath        string `validate:"required"`
	CorsAllowedOrigins string
	AdminJwtSecret     string
}

// RedisConfig describes how to reach the remote state backend.
// URL, when set, takes precedence over the discrete fields.
type RedisConfig struct {
	URL      string
	Host     string `validate:"required_without=URL"`
	Port     int    `validate:"required_without=URL,max=65535"`
	DB       int    `validate:"min=0"`
	Password string
}

type StoreConfig struct {
	KeyPrefix                     string `validate:"required,excludesall=*?[]\\"`
	DefaultSessionTTLSeconds      int    `validate:"min=1"`
	DefaultConversationTTLSeconds int    `validate:"min=1"`
	ConnectionTimeoutSeconds      int    `validate:"min=1"`
}

// EventsConfig controls where state lifecycle events are relayed. An empty
// NatsURL keeps them in-process (logged only).
type EventsConfig struct {
	NatsURL string `validate:"omitempty,url"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AdminJwtSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Store: StoreConfig{
			KeyPrefix:                     getEnv("REDIS_KEY_PREFIX", "chat:"),
			DefaultSessionTTLSeconds:      getEnvAsInt("SESSION_TTL_SECONDS", 86400),
			DefaultConversationTTLSeconds: getEnvAsInt("CONVERSATION_TTL_SECONDS", 86400),
			ConnectionTimeoutSeconds:      getEnvAsInt("REDIS_CONNECTION_TIMEOUT_SECONDS", 5),
		},
		Events: EventsConfig{
			NatsURL: getEnv("NATS_URL", ""),
		},
	}
}

// Validate reports ErrMalformedConfig when a required parameter is missing or out of range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	return nil
}

func (c StoreConfig) SessionTTL() time.Duration {
	return time.Duration(c.DefaultSessionTTLSeconds) * time.Second
}

func (c StoreConfig) ConversationTTL() time.Duration {
	return time.Duration(c.DefaultConversationTTLSeconds) * time.Second
}

func (c StoreConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSeconds) * time.Second
}

// Addr is the host:port pair used when no URL is configured.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
