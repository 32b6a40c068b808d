// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SESSIONBRIDGE_"

// ConfigEnvVar names the config file when no --config flag is given.
const ConfigEnvVar = EnvPrefix + "CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment" env:"ENVIRONMENT"`

	// Homeserver is the Matrix homeserver base URL.
	Homeserver string `yaml:"homeserver" env:"HOMESERVER"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Connection configures the connectivity monitor.
	Connection ConnectionConfig `yaml:"connection"`

	// Verification configures device verification flows.
	Verification VerificationConfig `yaml:"verification"`

	// RoomList configures the room list and its cache.
	RoomList RoomListConfig `yaml:"room_list"`

	// Log configures command logging.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Homeserver string            `yaml:"homeserver,omitempty"`
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Connection *ConnectionConfig `yaml:"connection,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// State holds the room-list cache and the member database.
	State string `yaml:"state" env:"STATE_DIR"`

	// TokenFile holds the access token. "-" reads it from stdin.
	TokenFile string `yaml:"token_file" env:"TOKEN_FILE"`
}

// ConnectionConfig configures the connectivity monitor.
type ConnectionConfig struct {
	// ProbeInterval is the liveness probe period.
	// Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`

	// RequestTimeout bounds each homeserver request.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// VerificationConfig configures device verification.
type VerificationConfig struct {
	// Timeout bounds a whole verification flow.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout" env:"VERIFICATION_TIMEOUT"`
}

// RoomListConfig configures the room list.
type RoomListConfig struct {
	// PageSize is how many rooms the engine loads per page.
	// Default: 50
	PageSize int `yaml:"page_size" env:"ROOM_LIST_PAGE_SIZE"`

	// Compression for the snapshot cache: none, lz4, or zstd.
	// Default: zstd
	Compression string `yaml:"compression" env:"CACHE_COMPRESSION"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".local", "state", "sessionbridge"),
		},
		Connection: ConnectionConfig{
			ProbeInterval:  30 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Verification: VerificationConfig{
			Timeout: 120 * time.Second,
		},
		RoomList: RoomListConfig{
			PageSize:    50,
			Compression: "zstd",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by SESSIONBRIDGE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your sessionbridge.yaml config file, or use --config flag", ConfigEnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, then
// applies environment overrides from the process environment.
func LoadFile(path string) (*Config, error) {
	return loadFile(path, nil)
}

// loadFile is LoadFile with an explicit environment. A nil environ
// reads the process environment.
func loadFile(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("reading %s* environment: %w", EnvPrefix, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Level: "warn"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Homeserver != "" {
		c.Homeserver = overrides.Homeserver
	}

	if overrides.Paths != nil {
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.TokenFile != "" {
			c.Paths.TokenFile = overrides.Paths.TokenFile
		}
	}

	if overrides.Connection != nil {
		if overrides.Connection.ProbeInterval != 0 {
			c.Connection.ProbeInterval = overrides.Connection.ProbeInterval
		}
		if overrides.Connection.RequestTimeout != 0 {
			c.Connection.RequestTimeout = overrides.Connection.RequestTimeout
		}
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["SESSIONBRIDGE_STATE"] = c.Paths.State // Update for dependent paths.
	c.Paths.TokenFile = expandVars(c.Paths.TokenFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	compressionValues = []string{"none", "lz4", "zstd"}
	logLevelValues    = []string{"debug", "info", "warn", "error"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("homeserver is required"))
	} else if parsed, err := url.Parse(c.Homeserver); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver must be an http(s) URL: %q", c.Homeserver))
	}

	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if c.Connection.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("connection.probe_interval must be positive"))
	}
	if c.Connection.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connection.request_timeout must be positive"))
	}
	if c.Verification.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("verification.timeout must be positive"))
	}
	if c.RoomList.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("room_list.page_size must be positive"))
	}
	if !slices.Contains(compressionValues, c.RoomList.Compression) {
		errs = append(errs, fmt.Errorf("room_list.compression must be one of: %v", compressionValues))
	}
	if !slices.Contains(logLevelValues, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevelValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RoomListCachePath is the room-list snapshot file.
func (c *Config) RoomListCachePath() string {
	return filepath.Join(c.Paths.State, "room_list_cache")
}

// MemberDatabasePath is the SQLite member cache.
func (c *Config) MemberDatabasePath() string {
	return filepath.Join(c.Paths.State, "members.db")
}

// EnsurePaths creates the state directory if it doesn't exist.
func (c *Config) EnsurePaths() error {
	if c.Paths.State == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	return nil
}
