// Package config loads the kernel server's configuration from the
// environment, with a .env pre-load step and the settings this kernel's
// REST/auth/LLM layers need.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of settings cmd/server needs to boot an instance
// loop.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseDSN string // empty means use the in-memory store
	JWTSecret   string
	OpenAIKey   string
}

// Load pre-loads a local .env file (if present; errors are ignored so a
// missing file is not fatal, matching joho/godotenv's own recommended
// usage) and then reads environment variables over it.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseDSN: getEnv("DATABASE_DSN", ""),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// PortInt returns the configured port as an integer.
func (c *Config) PortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
