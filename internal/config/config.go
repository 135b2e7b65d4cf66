// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// the rigrun mobile client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigrun-mobile/config.toml
//   - ~/.rigrun-mobile/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-mobile/internal/buffer"
	"github.com/jeranaias/rigrun-mobile/internal/coordinator"
	"github.com/jeranaias/rigrun-mobile/internal/projector"
	"github.com/jeranaias/rigrun-mobile/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mobile client configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`
	ImageModel   string `toml:"image_model" json:"image_model"`

	// Streaming buffer configuration
	Streaming StreamingConfig `toml:"streaming" json:"streaming"`

	// Projection (observable text) configuration
	Projection ProjectionConfig `toml:"projection" json:"projection"`

	// Session lifecycle configuration
	Session SessionConfig `toml:"session" json:"session"`

	// Leak filter configuration
	Leak LeakConfig `toml:"leak" json:"leak"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// StreamingConfig tunes the per-message content buffer.
type StreamingConfig struct {
	// FlushSizeBytes is the pending size that triggers an immediate flush.
	FlushSizeBytes int `toml:"flush_size_bytes" json:"flush_size_bytes"`
	// FlushIntervalMs is the maximum age of pending content before a
	// delayed flush fires.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms"`
}

// IntervalStep maps a committed-length floor onto a minimum commit interval.
type IntervalStep struct {
	MinLen     int `toml:"min_len" json:"min_len"`
	IntervalMs int `toml:"interval_ms" json:"interval_ms"`
}

// ProjectionConfig tunes the observable-text merge policy.
type ProjectionConfig struct {
	// DebounceMs is the window in which appends collapse into one update.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms"`
	// IntervalSteps is the adaptive commit interval table, sorted by
	// min_len ascending. Longer messages commit less often.
	IntervalSteps []IntervalStep `toml:"interval_steps" json:"interval_steps"`
	// FenceForceSize is the pending size at which the unclosed-code-fence
	// guard is overridden and the commit happens anyway.
	FenceForceSize int `toml:"fence_force_size" json:"fence_force_size"`
}

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	// MinConnectDisplayMs is how long the connecting affordance stays
	// visible before the first reasoning or content arrival.
	MinConnectDisplayMs int `toml:"min_connect_display_ms" json:"min_connect_display_ms"`
	// RetryMax caps silent retries per message on transient failures.
	RetryMax int `toml:"retry_max" json:"retry_max"`
	// RetryDelayMs is the fixed wait before a retry resend.
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms"`
	// PressureThreshold is the live-bundle count that triggers the
	// aggressive resource sweep.
	PressureThreshold int `toml:"pressure_threshold" json:"pressure_threshold"`
}

// LeakConfig tunes the system-prompt leak filter.
type LeakConfig struct {
	// Markers are the substrings that flag a leaking chunk. Empty uses the
	// built-in marker set.
	Markers []string `toml:"markers" json:"markers"`
}

// StorageConfig contains persistence paths and limits.
type StorageConfig struct {
	// ConversationsDir is where conversation JSON files live
	// (empty = ~/.rigrun-mobile/conversations).
	ConversationsDir string `toml:"conversations_dir" json:"conversations_dir"`
	// HistoryDBPath is the SQLite history archive path
	// (empty = ~/.rigrun-mobile/history.db).
	HistoryDBPath string `toml:"history_db_path" json:"history_db_path"`
	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// SaveIntervalMs is the minimum spacing between debounced saves.
	SaveIntervalMs int `toml:"save_interval_ms" json:"save_interval_ms"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// ShowReasoning displays the model's reasoning text while it thinks
	ShowReasoning bool `toml:"show_reasoning" json:"show_reasoning"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "llama3.2:3b",
		ImageModel:   "sdxl-turbo",

		Streaming: StreamingConfig{
			FlushSizeBytes:  48,
			FlushIntervalMs: 120,
		},

		Projection: ProjectionConfig{
			DebounceMs: 50,
			IntervalSteps: []IntervalStep{
				{MinLen: 0, IntervalMs: 60},
				{MinLen: 2 * 1024, IntervalMs: 150},
				{MinLen: 8 * 1024, IntervalMs: 300},
				{MinLen: 24 * 1024, IntervalMs: 500},
			},
			FenceForceSize: 4096,
		},

		Session: SessionConfig{
			MinConnectDisplayMs: 450,
			RetryMax:            3,
			RetryDelayMs:        2000,
			PressureThreshold:   64,
		},

		Leak: LeakConfig{
			Markers: nil, // built-in markers
		},

		Storage: StorageConfig{
			ConversationsDir: "",
			HistoryDBPath:    "",
			MaxConversations: 100,
			SaveIntervalMs:   2000,
		},

		UI: UIConfig{
			Theme:         "dark",
			CompactMode:   false,
			ShowReasoning: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-mobile"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err := finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

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
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaults.ImageModel
	}

	if cfg.Streaming.FlushSizeBytes == 0 {
		cfg.Streaming.FlushSizeBytes = defaults.Streaming.FlushSizeBytes
	}
	if cfg.Streaming.FlushIntervalMs == 0 {
		cfg.Streaming.FlushIntervalMs = defaults.Streaming.FlushIntervalMs
	}

	if cfg.Projection.DebounceMs == 0 {
		cfg.Projection.DebounceMs = defaults.Projection.DebounceMs
	}
	if len(cfg.Projection.IntervalSteps) == 0 {
		cfg.Projection.IntervalSteps = defaults.Projection.IntervalSteps
	}
	if cfg.Projection.FenceForceSize == 0 {
		cfg.Projection.FenceForceSize = defaults.Projection.FenceForceSize
	}

	if cfg.Session.MinConnectDisplayMs == 0 {
		cfg.Session.MinConnectDisplayMs = defaults.Session.MinConnectDisplayMs
	}
	if cfg.Session.RetryMax == 0 {
		cfg.Session.RetryMax = defaults.Session.RetryMax
	}
	if cfg.Session.RetryDelayMs == 0 {
		cfg.Session.RetryDelayMs = defaults.Session.RetryDelayMs
	}
	if cfg.Session.PressureThreshold == 0 {
		cfg.Session.PressureThreshold = defaults.Session.PressureThreshold
	}

	if cfg.Storage.MaxConversations == 0 {
		cfg.Storage.MaxConversations = defaults.Storage.MaxConversations
	}
	if cfg.Storage.SaveIntervalMs == 0 {
		cfg.Storage.SaveIntervalMs = defaults.Storage.SaveIntervalMs
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# rigrun mobile configuration file")
	fmt.Fprintln(file, "# Generated by rigrun-mobile - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Streaming.FlushSizeBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "streaming.flush_size_bytes",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Streaming.FlushSizeBytes),
		})
	}
	if c.Streaming.FlushIntervalMs < 10 || c.Streaming.FlushIntervalMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "streaming.flush_interval_ms",
			Message: fmt.Sprintf("must be 10-5000, got %d", c.Streaming.FlushIntervalMs),
		})
	}

	if c.Projection.DebounceMs < 1 || c.Projection.DebounceMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "projection.debounce_ms",
			Message: fmt.Sprintf("must be 1-1000, got %d", c.Projection.DebounceMs),
		})
	}
	prevMin := -1
	for i, step := range c.Projection.IntervalSteps {
		if step.MinLen <= prevMin {
			errs = append(errs, ValidationError{
				Field:   "projection.interval_steps",
				Message: fmt.Sprintf("step %d: min_len must be ascending", i),
			})
		}
		if step.IntervalMs < 1 {
			errs = append(errs, ValidationError{
				Field:   "projection.interval_steps",
				Message: fmt.Sprintf("step %d: interval_ms must be positive", i),
			})
		}
		prevMin = step.MinLen
	}
	if c.Projection.FenceForceSize < 256 {
		errs = append(errs, ValidationError{
			Field:   "projection.fence_force_size",
			Message: fmt.Sprintf("must be at least 256, got %d", c.Projection.FenceForceSize),
		})
	}

	if c.Session.MinConnectDisplayMs < 0 || c.Session.MinConnectDisplayMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "session.min_connect_display_ms",
			Message: fmt.Sprintf("must be 0-5000, got %d", c.Session.MinConnectDisplayMs),
		})
	}
	if c.Session.RetryMax < 0 || c.Session.RetryMax > 10 {
		errs = append(errs, ValidationError{
			Field:   "session.retry_max",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Session.RetryMax),
		})
	}
	if c.Session.RetryDelayMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "session.retry_delay_ms",
			Message: fmt.Sprintf("must be at least 100, got %d", c.Session.RetryDelayMs),
		})
	}
	if c.Session.PressureThreshold < 8 {
		errs = append(errs, ValidationError{
			Field:   "session.pressure_threshold",
			Message: fmt.Sprintf("must be at least 8, got %d", c.Session.PressureThreshold),
		})
	}

	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: "cannot be negative",
		})
	}
	if c.Storage.SaveIntervalMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "storage.save_interval_ms",
			Message: fmt.Sprintf("must be at least 100, got %d", c.Storage.SaveIntervalMs),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - RIGRUN_MODEL: overrides default_model
//   - RIGRUN_IMAGE_MODEL: overrides image_model
//   - RIGRUN_THEME: overrides ui.theme
//   - RIGRUN_RETRY_MAX: overrides session.retry_max
//   - RIGRUN_FLUSH_INTERVAL_MS: overrides streaming.flush_interval_ms
//   - RIGRUN_CONVERSATIONS_DIR: overrides storage.conversations_dir
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("RIGRUN_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if model := os.Getenv("RIGRUN_IMAGE_MODEL"); model != "" {
		c.ImageModel = model
	}
	if theme := os.Getenv("RIGRUN_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if v := os.Getenv("RIGRUN_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.RetryMax = n
		}
	}
	if v := os.Getenv("RIGRUN_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Streaming.FlushIntervalMs = n
		}
	}
	if dir := os.Getenv("RIGRUN_CONVERSATIONS_DIR"); dir != "" {
		c.Storage.ConversationsDir = dir
	}
}

// =============================================================================
// DOMAIN CONVERSIONS
// =============================================================================

// BufferConfig converts the streaming section into the buffer's tuning.
func (c *Config) BufferConfig() buffer.Config {
	return buffer.Config{
		SizeThreshold: c.Streaming.FlushSizeBytes,
		Interval:      time.Duration(c.Streaming.FlushIntervalMs) * time.Millisecond,
	}
}

// ProjectorConfig converts the projection section into the projector's
// merge policy.
func (c *Config) ProjectorConfig() projector.Config {
	steps := make([]projector.IntervalStep, 0, len(c.Projection.IntervalSteps))
	for _, s := range c.Projection.IntervalSteps {
		steps = append(steps, projector.IntervalStep{
			MinLen:   s.MinLen,
			Interval: time.Duration(s.IntervalMs) * time.Millisecond,
		})
	}
	return projector.Config{
		Debounce:       time.Duration(c.Projection.DebounceMs) * time.Millisecond,
		Steps:          steps,
		FenceForceSize: c.Projection.FenceForceSize,
	}
}

// CoordinatorConfig converts the session and streaming sections into the
// coordinator's tuning.
func (c *Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		Buffer:            c.BufferConfig(),
		MinConnectDisplay: time.Duration(c.Session.MinConnectDisplayMs) * time.Millisecond,
		RetryMax:          c.Session.RetryMax,
		RetryDelay:        time.Duration(c.Session.RetryDelayMs) * time.Millisecond,
		LeakMarkers:       c.Leak.Markers,
	}
}
