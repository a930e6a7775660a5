// SPDX-License-Identifier: AGPL-3.0-or-later
// Package config loads the watcher service's configuration from environment
// variables and the optional family-watcher YAML bootstrap file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logger   LoggerConfig
	// FamilyWatchersConfigFile is the optional path to a YAML file of
	// bootstrap JobFamilyWatcher entries. Empty when unset.
	FamilyWatchersConfigFile string
}

type DatabaseConfig struct {
	DSN string
}

type ServerConfig struct {
	ListenAddr string
}

type LoggerConfig struct {
	Level  string
	Format string // "classic" or "json"
}

// Load reads configuration from the process environment. DATABASE_URL is
// required; its absence is reported so the caller can exit non-zero.
func Load() (*Config, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{DSN: dsn},
		Server:   ServerConfig{ListenAddr: "0.0.0.0:8080"},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		FamilyWatchersConfigFile: getEnv("JOB_FAMILY_WATCHERS_CONFIG_FILE", ""),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadFamilyWatchers parses path as a YAML sequence of family-watcher
// bootstrap entries. A missing path is not an error: the caller should skip
// bootstrap entirely when path is empty before calling this.
func LoadFamilyWatchers(path string) ([]models.JobFamilyWatcherInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read family watchers config %s: %w", path, err)
	}

	var entries []models.JobFamilyWatcherInput
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse family watchers config %s: %w", path, err)
	}
	return entries, nil
}
