// Package config provides configuration loading and structs for the vecgate server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DriverOpenSearch = "opensearch"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ServiceName string `yaml:"service_name"`
}

// StorageConfig selects and configures the vector store.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// DSN is the PostgreSQL connection string. DSNSecretID, when set, names an
	// AWS Secrets Manager secret that supplies it instead.
	DSN          string           `yaml:"dsn"`
	DSNSecretID  string           `yaml:"dsn_secret_id"`
	DatabasePath string           `yaml:"database_path"`
	Table        string           `yaml:"table"`
	Dimensions   int              `yaml:"dimensions"`
	MaxOpenConns int              `yaml:"max_open_conns"`
	OpenSearch   OpenSearchConfig `yaml:"opensearch"`
}

// OpenSearchConfig holds the k-NN cluster settings.
type OpenSearchConfig struct {
	Addresses          []string `yaml:"addresses"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// EmbeddingConfig holds the OpenAI embedding helper settings. The helper is
// enabled only when an API key is configured directly or through
// APIKeySecretID.
type EmbeddingConfig struct {
	APIKey         string `yaml:"api_key"`
	APIKeySecretID string `yaml:"api_key_secret_id"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	CacheSize      int    `yaml:"cache_size"`
	// MaxAttempts bounds calls for rate-limited or unreachable requests.
	MaxAttempts int `yaml:"max_attempts"`
}

// Enabled reports whether an API key is configured.
func (e *EmbeddingConfig) Enabled() bool {
	return e.APIKey != "" || e.APIKeySecretID != ""
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, filepath.Dir(path))

	return &cfg, nil
}

// Default returns a config with every default applied, for running without a file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" && c.Storage.DSNSecretID == "" {
			return fmt.Errorf("storage.dsn or storage.dsn_secret_id is required for driver %q", c.Storage.Driver)
		}
	case DriverSQLite:
		if c.Storage.DatabasePath == "" {
			return fmt.Errorf("storage.database_path is required for driver %q", c.Storage.Driver)
		}
	case DriverOpenSearch:
		if len(c.Storage.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("storage.opensearch.addresses is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
