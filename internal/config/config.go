// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/campuskit/advisor-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete advisor configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API contains backend connection settings.
	API APIConfig `toml:"api" json:"api"`

	// Session contains session persistence settings.
	Session SessionConfig `toml:"session" json:"session"`

	// Cache contains local caching settings.
	Cache CacheConfig `toml:"cache" json:"cache"`

	// Logging contains log file settings.
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// UI contains presentation settings.
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains backend connection configuration.
type APIConfig struct {
	// BaseURL is the advisor backend endpoint.
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds non-streaming requests. Valid range is 5-120;
	// values outside are clamped.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// SessionConfig contains session persistence configuration.
type SessionConfig struct {
	// FilePath is the session record location (empty = <state dir>/session.json).
	FilePath string `toml:"file_path" json:"file_path"`
	// SyncEnabled mirrors session state to the backend.
	SyncEnabled bool `toml:"sync_enabled" json:"sync_enabled"`
	// SealToken encrypts the auth token at rest.
	SealToken bool `toml:"seal_token" json:"seal_token"`
}

// CacheConfig contains local caching configuration.
type CacheConfig struct {
	// HistoryEnabled keeps a local transcript cache.
	HistoryEnabled bool `toml:"history_enabled" json:"history_enabled"`
	// HistoryPath is the transcript database location (empty = <state dir>/history.db).
	HistoryPath string `toml:"history_path" json:"history_path"`
}

// LoggingConfig contains log file configuration.
type LoggingConfig struct {
	// Path is the log file location (empty = <state dir>/advisor.log).
	Path string `toml:"path" json:"path"`
	// Debug lowers the log level to debug.
	Debug bool `toml:"debug" json:"debug"`
	// MaxSizeMB is the rotation threshold. Valid range is 1-100;
	// values outside are clamped.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups"`
}

// UIConfig contains presentation configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// CompactMode uses a more compact layout.
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// Plain forces the line-based REPL instead of the full-screen UI.
	Plain bool `toml:"plain" json:"plain"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:     "https://api.campuskit.example.com/v1",
			TimeoutSecs: 30,
		},

		Session: SessionConfig{
			SyncEnabled: true,
			SealToken:   true,
		},

		Cache: CacheConfig{
			HistoryEnabled: true,
		},

		Logging: LoggingConfig{
			Debug:      false,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},

		UI: UIConfig{
			Theme:       "dark",
			Markdown:    true,
			CompactMode: false,
			Plain:       false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// StateDir returns the advisor state directory path.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".advisor"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureStateDir ensures the state directory exists.
func EnsureStateDir() error {
	dir, err := StateDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions fixes overly permissive config files, which
// may hold a backend URL with embedded credentials.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finishLoad(cfg)
		}
	}

	return finishLoad(cfg)
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finishLoad(cfg)
}

// finishLoad applies env overrides, defaults, and validation.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values, including derived state-dir
// paths.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}

	dir, err := StateDir()
	if err != nil {
		return
	}
	if c.Session.FilePath == "" {
		c.Session.FilePath = filepath.Join(dir, "session.json")
	}
	if c.Cache.HistoryPath == "" {
		c.Cache.HistoryPath = filepath.Join(dir, "history.db")
	}
	if c.Logging.Path == "" {
		c.Logging.Path = filepath.Join(dir, "advisor.log")
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ADVISOR_* environment variables on top of
// the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ADVISOR_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ADVISOR_API_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.TimeoutSecs = n
		}
	}
	if v := os.Getenv("ADVISOR_DEBUG"); v != "" {
		c.Logging.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ADVISOR_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("ADVISOR_PLAIN"); v != "" {
		c.UI.Plain = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ADVISOR_SESSION_FILE"); v != "" {
		c.Session.FilePath = v
	}
	if v := os.Getenv("ADVISOR_HISTORY_PATH"); v != "" {
		c.Cache.HistoryPath = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration, clamping numeric values into their
// valid ranges and rejecting values that cannot be healed.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not a valid URL", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme %q is not supported", u.Scheme)
	}

	c.API.TimeoutSecs = clampInt(c.API.TimeoutSecs, 5, 120)
	c.Logging.MaxSizeMB = clampInt(c.Logging.MaxSizeMB, 1, 100)
	c.Logging.MaxBackups = clampInt(c.Logging.MaxBackups, 0, 20)

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		c.UI.Theme = "dark"
	}
	return nil
}

// clampInt bounds v into [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// =============================================================================
// SAVE
// =============================================================================

// SaveTOML writes the configuration atomically as TOML with restrictive
// permissions.
func (c *Config) SaveTOML(path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}
