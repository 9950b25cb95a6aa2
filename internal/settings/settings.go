// Package settings manages the flat user-preference record persisted
// alongside chat history. Every option is independent and enumerated;
// unknown or missing values fall back to defaults, and no operation
// here ever surfaces an error to the caller.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rafiqlabs/rafiq/internal/kvstore"
)

// Theme values.
const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Font size values.
const (
	FontSmall  = "small"
	FontMedium = "medium"
	FontLarge  = "large"
)

// Settings is the flat configuration record. Fields carry the same
// JSON keys as the persisted blob.
type Settings struct {
	Theme         string `json:"theme"`
	FontSize      string `json:"fontSize"`
	ResponseStyle string `json:"responseStyle"`
	Madhab        string `json:"madhab"`
	Memory        string `json:"memory,omitempty"`
	LanguageStyle string `json:"languageStyle,omitempty"`
}

// Defaults returns the baseline settings record.
func Defaults() Settings {
	return Settings{
		Theme:         ThemeAuto,
		FontSize:      FontMedium,
		ResponseStyle: "balanced",
		Madhab:        "none",
	}
}

// Manager loads and saves the settings record.
type Manager struct {
	kv       kvstore.Store
	logger   *slog.Logger
	defaults Settings
}

// Option configures the Manager.
type Option func(*Manager)

// WithDefaults overrides the baseline record (build-variant defaults,
// e.g. a dark default theme).
func WithDefaults(d Settings) Option {
	return func(m *Manager) { m.defaults = d }
}

// NewManager creates a settings Manager.
func NewManager(kv kvstore.Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		kv:       kv,
		logger:   logger,
		defaults: Defaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Defaults returns the manager's baseline record.
func (m *Manager) Defaults() Settings {
	return m.defaults
}

// Load reads the persisted record and shallow-merges it onto the
// defaults: persisted values win per key, missing keys keep their
// defaults. Any read or parse failure is logged and yields defaults.
func (m *Manager) Load(ctx context.Context) Settings {
	merged := m.defaults

	raw, ok, err := m.kv.Get(ctx, kvstore.KeySettings)
	if err != nil {
		m.logger.Error("loading settings", slog.String("error", err.Error()))
		return merged
	}
	if !ok || raw == "" {
		return merged
	}

	// Unmarshaling onto the defaults copy leaves absent keys intact.
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		m.logger.Error("parsing settings, using defaults", slog.String("error", err.Error()))
		return m.defaults
	}
	return merged
}

// Save persists a fully-populated record: every empty field is
// re-resolved from the defaults before writing, so a save is always a
// full overwrite rather than a patch. Persistence is best-effort.
func (m *Manager) Save(ctx context.Context, s Settings) Settings {
	resolved := m.normalize(s)

	data, err := json.Marshal(resolved)
	if err != nil {
		m.logger.Error("serializing settings", slog.String("error", err.Error()))
		return resolved
	}
	if err := m.kv.Set(ctx, kvstore.KeySettings, string(data)); err != nil {
		m.logger.Error("persisting settings", slog.String("error", err.Error()))
	}
	return resolved
}

func (m *Manager) normalize(s Settings) Settings {
	if s.Theme == "" {
		s.Theme = m.defaults.Theme
	}
	if s.FontSize == "" {
		s.FontSize = m.defaults.FontSize
	}
	if s.ResponseStyle == "" {
		s.ResponseStyle = m.defaults.ResponseStyle
	}
	if s.Madhab == "" {
		s.Madhab = m.defaults.Madhab
	}
	if s.Memory == "" {
		s.Memory = m.defaults.Memory
	}
	if s.LanguageStyle == "" {
		s.LanguageStyle = m.defaults.LanguageStyle
	}
	return s
}

// FontSizePoints maps a font size name to its fixed point size, with
// a hardcoded fallback for unrecognized values.
func FontSizePoints(size string) int {
	switch size {
	case FontSmall:
		return 14
	case FontMedium:
		return 16
	case FontLarge:
		return 18
	default:
		return 16
	}
}

// ResolveTheme resolves the effective theme. ThemeAuto follows the
// system dark-mode signal; callers re-resolve on signal changes while
// the stored theme remains ThemeAuto.
func ResolveTheme(theme string, systemDark bool) string {
	if theme == ThemeAuto {
		if systemDark {
			return ThemeDark
		}
		return ThemeLight
	}
	return theme
}
