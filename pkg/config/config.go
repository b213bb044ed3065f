// Package config centralizes runtime configuration.
//
// Configuration comes from three layers, lowest priority first: built-in
// defaults, an optional YAML file, and AIME_-prefixed environment
// variables. Call Validate before using a loaded Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the AI.me store and server.
type Config struct {
	Database   DatabaseConfig `yaml:"database"`
	Server     ServerConfig   `yaml:"server"`
	Auth       AuthConfig     `yaml:"auth"`
	Audit      AuditConfig    `yaml:"audit"`
	Extract    ExtractConfig  `yaml:"extract"`
	Validation ValidateConfig `yaml:"validate"`
}

// DatabaseConfig controls the storage engine.
type DatabaseConfig struct {
	// DataDir is where BadgerDB keeps its files. Empty selects the
	// in-memory engine.
	DataDir string `yaml:"data_dir"`

	// SyncWrites forces fsync on every storage write.
	SyncWrites bool `yaml:"sync_writes"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Username and Password bootstrap the initial account.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	MinPasswordLength int           `yaml:"min_password_length"`
	TokenExpiry       time.Duration `yaml:"token_expiry"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// LogPath is the JSONL audit file. Empty keeps events in memory.
	LogPath string `yaml:"log_path"`

	SyncWrites bool `yaml:"sync_writes"`
}

// ExtractConfig bounds subgraph extraction.
type ExtractConfig struct {
	MaxNodes int `yaml:"max_nodes"`
	MaxHops  int `yaml:"max_hops"`
}

// ValidateConfig tunes groundedness scoring.
type ValidateConfig struct {
	Threshold          float64 `yaml:"threshold"`
	MetadataWeight     float64 `yaml:"metadata_weight"`
	ConnectivityWeight float64 `yaml:"connectivity_weight"`
	VerificationWeight float64 `yaml:"verification_weight"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir: "./data",
		},
		Server: ServerConfig{
			Enabled:      true,
			Address:      "0.0.0.0",
			Port:         8484,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:           false,
			MinPasswordLength: 8,
			TokenExpiry:       24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "./data/audit.log",
		},
		Extract: ExtractConfig{
			MaxNodes: 500,
			MaxHops:  2,
		},
		Validation: ValidateConfig{
			Threshold:          0.7,
			MetadataWeight:     0.4,
			ConnectivityWeight: 0.3,
			VerificationWeight: 0.3,
		},
	}
}

// LoadFile overlays the YAML file at path onto the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays AIME_-prefixed environment variables onto cfg.
// A nil cfg starts from the defaults.
func LoadFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = Default()
	}

	cfg.Database.DataDir = getEnv("AIME_DATA_DIR", cfg.Database.DataDir)
	cfg.Database.SyncWrites = getEnvBool("AIME_SYNC_WRITES", cfg.Database.SyncWrites)

	cfg.Server.Enabled = getEnvBool("AIME_SERVER_ENABLED", cfg.Server.Enabled)
	cfg.Server.Address = getEnv("AIME_SERVER_ADDRESS", cfg.Server.Address)
	cfg.Server.Port = getEnvInt("AIME_SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("AIME_SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("AIME_SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Auth.Enabled = getEnvBool("AIME_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.Username = getEnv("AIME_AUTH_USERNAME", cfg.Auth.Username)
	cfg.Auth.Password = getEnv("AIME_AUTH_PASSWORD", cfg.Auth.Password)
	cfg.Auth.TokenExpiry = getEnvDuration("AIME_AUTH_TOKEN_EXPIRY", cfg.Auth.TokenExpiry)

	cfg.Audit.Enabled = getEnvBool("AIME_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.LogPath = getEnv("AIME_AUDIT_LOG_PATH", cfg.Audit.LogPath)
	cfg.Audit.SyncWrites = getEnvBool("AIME_AUDIT_SYNC_WRITES", cfg.Audit.SyncWrites)

	cfg.Extract.MaxNodes = getEnvInt("AIME_EXTRACT_MAX_NODES", cfg.Extract.MaxNodes)
	cfg.Extract.MaxHops = getEnvInt("AIME_EXTRACT_MAX_HOPS", cfg.Extract.MaxHops)

	cfg.Validation.Threshold = getEnvFloat("AIME_VALIDATE_THRESHOLD", cfg.Validation.Threshold)
	cfg.Validation.MetadataWeight = getEnvFloat("AIME_VALIDATE_METADATA_WEIGHT", cfg.Validation.MetadataWeight)
	cfg.Validation.ConnectivityWeight = getEnvFloat("AIME_VALIDATE_CONNECTIVITY_WEIGHT", cfg.Validation.ConnectivityWeight)
	cfg.Validation.VerificationWeight = getEnvFloat("AIME_VALIDATE_VERIFICATION_WEIGHT", cfg.Validation.VerificationWeight)

	return cfg
}

// Load builds the effective configuration: defaults, then the YAML file
// at path if non-empty, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	cfg = LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Auth.Enabled {
		if c.Auth.Username == "" {
			return fmt.Errorf("authentication enabled but no username provided")
		}
		if len(c.Auth.Password) < c.Auth.MinPasswordLength {
			return fmt.Errorf("password must be at least %d characters", c.Auth.MinPasswordLength)
		}
	}
	if c.Extract.MaxNodes <= 0 {
		return fmt.Errorf("invalid extract max_nodes: %d", c.Extract.MaxNodes)
	}
	if c.Extract.MaxHops < 0 {
		return fmt.Errorf("invalid extract max_hops: %d", c.Extract.MaxHops)
	}
	if c.Validation.Threshold <= 0 || c.Validation.Threshold > 1 {
		return fmt.Errorf("invalid validation threshold: %g", c.Validation.Threshold)
	}
	sum := c.Validation.MetadataWeight + c.Validation.ConnectivityWeight + c.Validation.VerificationWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("validation weights must sum to 1, got %g", sum)
	}
	return nil
}

// String returns a log-safe rendering. Credentials are omitted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, HTTP: %s:%d, Auth: %v, Audit: %v, Threshold: %g}",
		c.Database.DataDir,
		c.Server.Address, c.Server.Port,
		c.Auth.Enabled,
		c.Audit.Enabled,
		c.Validation.Threshold,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
