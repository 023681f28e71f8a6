// Package config handles configuration loading and validation for mend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCommitMessage uses git's prepared MERGE_MSG when there is one.
const DefaultCommitMessage = `{{ if .Message }}{{ .Message }}{{ else }}Merge commit {{ short .Incoming }} into {{ short .Current }}{{ end }}`

// Config holds the application configuration.
type Config struct {
	GitPath     string            `yaml:"git_path"`
	Database    DatabaseConfig    `yaml:"database"`
	Merge       MergeConfig       `yaml:"merge"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Audit       AuditConfig       `yaml:"audit"`
	DataDir     string            `yaml:"-"` // set by caller, not from config file
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// MergeConfig controls parsing, commit messages, and watching.
type MergeConfig struct {
	// MarkerSize is the conflict marker length, git's conflict-marker-size.
	MarkerSize int `yaml:"marker_size"`
	// ExpectConflicts makes opening a file without markers an error.
	ExpectConflicts *bool `yaml:"expect_conflicts"`
	// CommitMessage is a template for the merge commit message.
	CommitMessage string `yaml:"commit_message"`
	// WatchDebounce coalesces bursts of file events in `mend watch`.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// PermissionsConfig maps permissions to user ID glob patterns.
type PermissionsConfig struct {
	CommitCode []string `yaml:"commit_code"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled    *bool `yaml:"enabled"`
	BufferSize int   `yaml:"buffer_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GitPath: "git",
		Database: DatabaseConfig{
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			BusyTimeout:  5000,
		},
		Merge: MergeConfig{
			MarkerSize:      7,
			ExpectConflicts: boolPtr(true),
			CommitMessage:   DefaultCommitMessage,
			WatchDebounce:   250 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    boolPtr(true),
			BufferSize: 256,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.GitPath == "" {
		c.GitPath = defaults.GitPath
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = defaults.Database.BusyTimeout
	}
	if c.Merge.MarkerSize == 0 {
		c.Merge.MarkerSize = defaults.Merge.MarkerSize
	}
	if c.Merge.ExpectConflicts == nil {
		c.Merge.ExpectConflicts = defaults.Merge.ExpectConflicts
	}
	if c.Merge.CommitMessage == "" {
		c.Merge.CommitMessage = defaults.Merge.CommitMessage
	}
	if c.Merge.WatchDebounce == 0 {
		c.Merge.WatchDebounce = defaults.Merge.WatchDebounce
	}
	if c.Audit.Enabled == nil {
		c.Audit.Enabled = defaults.Audit.Enabled
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = defaults.Audit.BufferSize
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.GitPath == "" {
		return fmt.Errorf("git_path cannot be empty")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}

	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}

	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout cannot be negative")
	}

	if c.Merge.MarkerSize < 1 {
		return fmt.Errorf("merge.marker_size must be at least 1")
	}

	if c.Merge.WatchDebounce < 0 {
		return fmt.Errorf("merge.watch_debounce cannot be negative")
	}

	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit.buffer_size must be at least 1")
	}

	return nil
}

// ExpectConflicts reports whether opening a file without markers is an error.
func (c *Config) ExpectConflicts() bool {
	return c.Merge.ExpectConflicts == nil || *c.Merge.ExpectConflicts
}

// AuditEnabled reports whether audit entries are persisted.
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// Grants returns the permission table for the authorizer.
func (c *Config) Grants() map[string][]string {
	return map[string][]string{
		"commit_code": c.Permissions.CommitCode,
	}
}

// DatabaseFile returns the path to the SQLite database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "mend.db")
}

// LogFile returns the default log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "mend.log")
}

func boolPtr(b bool) *bool { return &b }
