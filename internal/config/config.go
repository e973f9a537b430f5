// Package config provides configuration management for crmstore.
// Settings come from built-in defaults, an optional YAML file and finally
// environment variables with the CRMSTORE_ prefix, each layer overriding the
// previous one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for crmstore.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL            string `yaml:"url"`              // PostgreSQL DSN (required)
	AuthUsersTable string `yaml:"auth_users_table"` // Identity provider user table (default: users)
	ApplySchema    bool   `yaml:"apply_schema"`     // Bootstrap the schema on open (default: false)
}

// SearchConfig contains search defaults.
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`        // default: 20
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // default: 0.7
}

// JobsConfig contains job bookkeeping settings.
type JobsConfig struct {
	// StuckAfter is how long a job may stay processing before it is reported
	// as stuck. Written as a Go duration ("15m") in YAML and env.
	StuckAfter time.Duration `yaml:"stuck_after"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			AuthUsersTable: "users",
		},
		Search: SearchConfig{
			DefaultLimit:        20,
			SimilarityThreshold: 0.7,
		},
		Jobs: JobsConfig{
			StuckAfter: 15 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and CRMSTORE_ environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.URL = getEnv("CRMSTORE_DATABASE_URL", c.Database.URL)
	c.Database.AuthUsersTable = getEnv("CRMSTORE_AUTH_USERS_TABLE", c.Database.AuthUsersTable)
	c.Database.ApplySchema = getEnvBool("CRMSTORE_APPLY_SCHEMA", c.Database.ApplySchema)
	c.Search.DefaultLimit = getEnvInt("CRMSTORE_SEARCH_DEFAULT_LIMIT", c.Search.DefaultLimit)
	c.Search.SimilarityThreshold = getEnvFloat("CRMSTORE_SEARCH_SIMILARITY_THRESHOLD", c.Search.SimilarityThreshold)
	c.Jobs.StuckAfter = getEnvDuration("CRMSTORE_JOBS_STUCK_AFTER", c.Jobs.StuckAfter)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("config: database url is required (CRMSTORE_DATABASE_URL)")
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 100 {
		return fmt.Errorf("config: search default_limit must be between 1 and 100, got %d", c.Search.DefaultLimit)
	}
	if c.Search.SimilarityThreshold < -1 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("config: search similarity_threshold must be within [-1, 1], got %g", c.Search.SimilarityThreshold)
	}
	if c.Jobs.StuckAfter <= 0 {
		return fmt.Errorf("config: jobs stuck_after must be positive, got %s", c.Jobs.StuckAfter)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
