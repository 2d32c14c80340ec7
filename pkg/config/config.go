package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment  string
	LogLevel     string
	LogFormat    string
	StorageDir   string
	TrainTimeout int // Seconds, 0 disables the timeout
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		StorageDir:   getEnv("STORAGE_DIR", ".mimir-lvq"),
		TrainTimeout: getEnvAsInt("TRAIN_TIMEOUT", 0),
	}

	if config.LogFormat != "text" && config.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", config.LogFormat)
	}
	if config.TrainTimeout < 0 {
		return nil, fmt.Errorf("TRAIN_TIMEOUT must not be negative")
	}

	return config, nil
}

// TrainTimeoutDuration returns the training timeout, 0 when disabled
func (c *Config) TrainTimeoutDuration() time.Duration {
	return time.Duration(c.TrainTimeout) * time.Second
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
