package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string

	// AllowedOrigins is used for both CORS and the websocket origin check.
	AllowedOrigins []string

	// DevAuthSecret signs development identity tokens. Production
	// deployments wire a real identity provider instead.
	DevAuthSecret string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/resale.db"),
		DevAuthSecret: getEnv("DEV_AUTH_SECRET", "dev-secret"),
	}

	// Parse allowed origins (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, entry)
			}
		}
	}

	// In production, require the database and a real origin list
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if len(cfg.AllowedOrigins) == 0 {
			panic("ALLOWED_ORIGINS is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
