// Package config loads runtime settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	// OpenAIKey authenticates against the model provider. Required.
	OpenAIKey string

	// APIKey is the shared secret clients send with each query.
	APIKey string

	// Port the HTTP server listens on.
	Port int

	// BaseURL is the public prefix citation links are built from.
	BaseURL string

	// DocumentDir holds the source documents, served at /documents.
	DocumentDir string

	// DataDir holds the vector index and the structured SQLite store.
	DataDir string

	// SessionBackend selects the session store: "memory", "redis" or
	// "postgres".
	SessionBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PostgresURL is the session database DSN when SessionBackend is
	// "postgres".
	PostgresURL string

	// MaxCycles caps planner/executor round trips per turn; 0 uses the
	// agent default.
	MaxCycles int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is fine outside development.
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIKey:         getEnv("API_KEY", "docintel-dev-key"),
		Port:           getEnvInt("PORT", 8080),
		DocumentDir:    getEnv("DOCUMENT_DIR", "document_storage"),
		DataDir:        getEnv("DATA_DIR", ".docintel"),
		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		PostgresURL:    os.Getenv("DATABASE_URL"),
		MaxCycles:      getEnvInt("MAX_CYCLES", 0),
	}
	cfg.BaseURL = getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	switch cfg.SessionBackend {
	case "memory", "redis":
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres session backend")
		}
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
