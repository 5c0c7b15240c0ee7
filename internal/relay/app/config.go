package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer               string        // Issuer claim for access tokens (default: saathi-relay)
	NumKeys              int           // Number of signing keys to generate (default: 3, min: 1, max: 10)
	TokenTTL             time.Duration // Access token lifetime (default: 12h)
	DatabaseFile         string        // Path to SQLite database file (default: ./relay.db)
	PepperFile           string        // Path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Presence reconciliation interval (default: 1m)
	MaxFramesPerSecond   int           // Inbound websocket frames per session per second (default: 40)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("RELAY_ISSUER", "saathi-relay"),
		NumKeys:              getEnvIntOrDefault("RELAY_NUM_KEYS", 0), // 0 lets the KeyManager pick
		TokenTTL:             getEnvDurationOrDefault("RELAY_TOKEN_TTL", 12*time.Hour),
		DatabaseFile:         getEnvOrDefault("RELAY_DATABASE_FILE", "relay.db"),
		PepperFile:           getEnvOrDefault("RELAY_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
		MaxFramesPerSecond:   getEnvIntOrDefault("WS_MAX_FRAMES_PER_SECOND", 40),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
