// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string   // debug, info, warn, error
	ListenAddr        string   // API listen address (e.g., ":8080")
	MetricsListenAddr string   // Metrics listener address (e.g., "localhost:9090")
	DatabasePath      string   // SQLite database path
	MasterAPIKey      string   // Master credential (plaintext); grants full permissions
	MasterAPIKeyHash  string   // Optional bcrypt hash of the master credential, used instead of MasterAPIKey
	PublicPaths       []string // Request paths that bypass authentication entirely
	DefaultRPM        int      // Default per-minute rate limit ceiling for new keys
	DefaultRPH        int      // Default per-hour rate limit ceiling for new keys
}

// Load parses configuration from environment variables.
// All options except the master credential have defaults for ease of deployment.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", "localhost:9090"),
		DatabasePath:      getEnv("DATABASE_PATH", "/data/keygate.db"),
		MasterAPIKey:      os.Getenv("MASTER_API_KEY"),
		MasterAPIKeyHash:  os.Getenv("MASTER_API_KEY_HASH"),
	}

	cfg.PublicPaths = splitPaths(getEnv("PUBLIC_PATHS", "/health,/ready"))

	rpm, err := getEnvInt("DEFAULT_REQUESTS_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	cfg.DefaultRPM = rpm

	rph, err := getEnvInt("DEFAULT_REQUESTS_PER_HOUR", 1000)
	if err != nil {
		return nil, err
	}
	cfg.DefaultRPH = rph

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.MasterAPIKey == "" && c.MasterAPIKeyHash == "" {
		return fmt.Errorf("MASTER_API_KEY or MASTER_API_KEY_HASH environment variable is required")
	}
	if c.DefaultRPM <= 0 {
		return fmt.Errorf("DEFAULT_REQUESTS_PER_MINUTE must be positive, got %d", c.DefaultRPM)
	}
	if c.DefaultRPH <= 0 {
		return fmt.Errorf("DEFAULT_REQUESTS_PER_HOUR must be positive, got %d", c.DefaultRPH)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

// getEnv returns the environment variable value or a default.
func getEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// getEnvInt returns an integer environment variable value or a default.
func getEnvInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// splitPaths parses a comma-separated path list, dropping empty entries.
func splitPaths(raw string) []string {
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
