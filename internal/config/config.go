// Package config handles loading and validating the rafiq client
// configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rafiqlabs/rafiq/internal/history"
	"github.com/rafiqlabs/rafiq/internal/kvstore"
	"github.com/rafiqlabs/rafiq/internal/settings"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// DefaultBackendURL is the hosted chat service.
const DefaultBackendURL = "https://rafiq-ul-islam-production.up.railway.app"

// Config is the root configuration for the rafiq client.
type Config struct {
	BackendURL string         `json:"backend_url,omitempty" yaml:"backend_url,omitempty"` // Chat API base URL. Default: DefaultBackendURL. Override: RAFIQ_BACKEND_URL env var.
	DataDir    string         `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`       // Persistent data directory. Default: ~/.rafiq/data. Override: RAFIQ_DATA_DIR env var.
	Storage    *StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`         // nil = SQLite defaults under DataDir.
	History    HistoryConfig  `json:"history" yaml:"history"`
	Chat       ChatConfig     `json:"chat" yaml:"chat"`
	Format     FormatConfig   `json:"format" yaml:"format"`
	Defaults   DefaultsConfig `json:"defaults" yaml:"defaults"`
}

// StorageConfig configures the key-value persistence backend.
type StorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`               // Database file path. Default: <data_dir>/rafiq.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`                   // "wal" (default), "delete", "truncate", etc.
	QuotaBytes  int    `json:"quota_bytes,omitempty" yaml:"quota_bytes,omitempty"` // Max bytes per stored value. Default: kvstore.DefaultQuotaBytes.
}

// HistoryConfig configures thread retention.
type HistoryConfig struct {
	RetentionCap int `json:"retention_cap,omitempty" yaml:"retention_cap,omitempty"` // Max retained threads. Default: 50.
}

// ChatConfig configures exchange behavior.
type ChatConfig struct {
	TimeoutSeconds       int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"` // Per-exchange timeout. Default: 30.
	FallbackReply        string `json:"fallback_reply,omitempty" yaml:"fallback_reply,omitempty"`   // Shown when the remote call fails.
	PersistUserOnFailure bool   `json:"persist_user_on_failure" yaml:"persist_user_on_failure"`     // Keep the user half of a failed exchange. Default: false.
}

// FormatConfig configures message rendering.
type FormatConfig struct {
	EscapeHTML     *bool `json:"escape_html,omitempty" yaml:"escape_html,omitempty"` // nil = true.
	CollapseSpaces bool  `json:"collapse_spaces" yaml:"collapse_spaces"`             // Render double spaces as non-breaking pairs. Default: false.
}

// DefaultsConfig seeds the settings record for first-run users
// (build-variant defaults).
type DefaultsConfig struct {
	Theme    string `json:"theme,omitempty" yaml:"theme,omitempty"`         // Default: "auto".
	FontSize string `json:"font_size,omitempty" yaml:"font_size,omitempty"` // Default: "medium".
}

// DefaultConfigPath returns the default config file path (~/.rafiq/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/rafiq.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".rafiq", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML,
// everything else for JSON. A missing file yields pure defaults.
// Environment variables take precedence over config values.
func Load(path string) (*Config, error) {
	var cfg Config

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	case strings.HasSuffix(resolved, ".yml") || strings.HasSuffix(resolved, ".yaml"):
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides.
	if envURL := os.Getenv("RAFIQ_BACKEND_URL"); envURL != "" {
		cfg.BackendURL = envURL
	}
	if envDD := os.Getenv("RAFIQ_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	parsed, err := url.Parse(c.ResolvedBackendURL())
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend_url %q is not an absolute URL", c.ResolvedBackendURL())
	}
	if c.History.RetentionCap < 0 {
		return fmt.Errorf("history.retention_cap must not be negative")
	}
	if c.Chat.TimeoutSeconds < 0 {
		return fmt.Errorf("chat.timeout_seconds must not be negative")
	}
	if c.Storage != nil && c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes must not be negative")
	}
	if t := c.Defaults.Theme; t != "" && t != settings.ThemeAuto && t != settings.ThemeLight && t != settings.ThemeDark {
		return fmt.Errorf("defaults.theme %q is not one of auto, light, dark", t)
	}
	if fs := c.Defaults.FontSize; fs != "" && fs != settings.FontSmall && fs != settings.FontMedium && fs != settings.FontLarge {
		return fmt.Errorf("defaults.font_size %q is not one of small, medium, large", fs)
	}
	return nil
}

// ResolvedBackendURL returns the backend URL, defaulting to the hosted
// service.
func (c *Config) ResolvedBackendURL() string {
	if c.BackendURL != "" {
		return c.BackendURL
	}
	return DefaultBackendURL
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".rafiq", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite file path.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "rafiq.db")
}

// JournalMode returns the SQLite journal mode, defaulting to "wal".
func (c *Config) JournalMode() string {
	if c.Storage != nil && c.Storage.JournalMode != "" {
		return c.Storage.JournalMode
	}
	return "wal"
}

// QuotaBytes returns the per-value storage quota.
func (c *Config) QuotaBytes() int {
	if c.Storage != nil && c.Storage.QuotaBytes > 0 {
		return c.Storage.QuotaBytes
	}
	return kvstore.DefaultQuotaBytes
}

// RetentionCap returns the maximum retained thread count.
func (c *Config) RetentionCap() int {
	if c.History.RetentionCap > 0 {
		return c.History.RetentionCap
	}
	return history.DefaultRetentionCap
}

// ExchangeTimeout returns the per-exchange timeout.
func (c *Config) ExchangeTimeout() time.Duration {
	if c.Chat.TimeoutSeconds > 0 {
		return time.Duration(c.Chat.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// EscapeHTML reports whether message text is HTML-escaped before
// markup substitution. Defaults to true.
func (c *Config) EscapeHTML() bool {
	if c.Format.EscapeHTML != nil {
		return *c.Format.EscapeHTML
	}
	return true
}

// FallbackReply returns the assistant text shown on remote failure.
func (c *Config) FallbackReply() string {
	return c.Chat.FallbackReply // empty means the controller default
}

// SettingsDefaults returns the baseline settings record with the
// variant overrides applied.
func (c *Config) SettingsDefaults() settings.Settings {
	d := settings.Defaults()
	if c.Defaults.Theme != "" {
		d.Theme = c.Defaults.Theme
	}
	if c.Defaults.FontSize != "" {
		d.FontSize = c.Defaults.FontSize
	}
	return d
}
