// Package config manages the devkeep configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is the current configuration document schema.
const SchemaVersion = "1"

// Provider identifies a backup destination.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderICloud Provider = "icloud"
)

// Config is the persisted configuration document. It is written as a single
// JSON file and replaced atomically on save.
type Config struct {
	SchemaVersion string      `json:"schemaVersion"`
	Preferences   Preferences `json:"preferences"`
	Backup        Backup      `json:"backup"`
}

// Preferences holds user-facing toggles.
type Preferences struct {
	AnalyticsEnabled bool `json:"analyticsEnabled"`
	AutoBackup       bool `json:"autoBackup"`
	VerboseLogging   bool `json:"verboseLogging"`
}

// Backup holds backup orchestration settings.
type Backup struct {
	Provider           Provider `json:"provider"`
	RetentionDays      int      `json:"retentionDays"`
	CompressionEnabled bool     `json:"compressionEnabled"`
}

// Default returns the built-in configuration used when no valid document
// exists on disk.
func Default() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Preferences: Preferences{
			AnalyticsEnabled: false,
			AutoBackup:       true,
			VerboseLogging:   false,
		},
		Backup: Backup{
			Provider:           ProviderLocal,
			RetentionDays:      30,
			CompressionEnabled: true,
		},
	}
}

// ValidationError reports a configuration field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}

// Validate checks every field against the document schema. It returns the
// first violation as a *ValidationError.
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return &ValidationError{
			Field:  "schemaVersion",
			Reason: fmt.Sprintf("unsupported version %q (want %q)", c.SchemaVersion, SchemaVersion),
		}
	}
	switch c.Backup.Provider {
	case ProviderLocal, ProviderICloud:
	default:
		return &ValidationError{
			Field:  "backup.provider",
			Reason: fmt.Sprintf("unknown provider %q (want local or icloud)", c.Backup.Provider),
		}
	}
	if c.Backup.RetentionDays <= 0 {
		return &ValidationError{
			Field:  "backup.retentionDays",
			Reason: fmt.Sprintf("must be positive, got %d", c.Backup.RetentionDays),
		}
	}
	return nil
}

// Store loads and saves the configuration document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the persisted document.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document. It never fails the caller: if the file
// is missing, unreadable, or fails validation, Load returns the built-in
// defaults together with a non-nil warning explaining the substitution. The
// returned Config is always valid.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to read config %s, using defaults: %w", s.path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s, using defaults: %w", s.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("config %s failed validation, using defaults: %w", s.path, err)
	}
	return &cfg, nil
}

// Save validates cfg and replaces the persisted document atomically. On
// validation failure the file on disk is left untouched and the returned
// error is a *ValidationError identifying the offending field.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	// Write to a temp file in the same directory, then rename over the
	// target so a crash mid-write never corrupts the previous document.
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config file mode: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
