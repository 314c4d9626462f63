package config

import (
	"fmt"
	"os"
)

// GetEnv returns the value of the named environment variable, or
// defaultValue if it is unset or empty. godotenv/autoload (imported for
// its side effect in every cmd/*/main.go) populates the process
// environment from a .env file before this is ever called.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MustGetEnv returns the named environment variable or terminates the
// process: used at composition roots for settings with no safe default
// (credentials, tenant identifiers), where starting up anyway would mask
// a misconfiguration until first use.
func MustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("missing required environment variable %q", key))
	}
	return value
}
