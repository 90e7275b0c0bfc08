package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvDriver       = "VECGATE_STORE_DRIVER"
	EnvDSN          = "VECGATE_DATABASE_DSN"
	EnvDSNSecretID  = "VECGATE_DATABASE_DSN_SECRET_ID"
	EnvDatabasePath = "VECGATE_DATABASE_PATH"
	EnvPort         = "VECGATE_PORT"
	EnvLogLevel     = "VECGATE_LOG_LEVEL"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any of the VECGATE_* variables (and OPENAI_API_KEY) that are set.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvDSNSecretID); v != "" {
		cfg.Storage.DSNSecretID = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	return nil
}
