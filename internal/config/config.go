// Package config provides configuration structures and utilities for
// lmscrawl. It defines the crawl settings (credentials, concurrency,
// brute-force bounds) and the output/database locations.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultBaseURL is the production LMS portal. Overridable for
	// staging instances and for tests against a local server.
	DefaultBaseURL = "https://lms.hcmut.edu.vn"

	// DefaultWorkers of 1 means sequential crawling. The portal throttles
	// aggressive clients, so parallelism is strictly opt-in.
	DefaultWorkers = 1

	// DefaultBatchSize of 100 keeps brute-force runs bounded in memory
	// and produces a durable checkpoint roughly every hundred profiles.
	// A smaller batch loses less work on interruption but checkpoints
	// (full read-merge-write of the output collections) more often.
	DefaultBatchSize = 100

	// DefaultTimeout bounds each fetch attempt. The portal is slow under
	// registration-period load; see the fetch package.
	DefaultTimeout = 30 * time.Second

	// DefaultSeedFile is the newline-delimited list of extra user ids
	// consumed in brute-force mode, kept next to the binary for
	// compatibility with earlier tooling that produced it.
	DefaultSeedFile = "userId.txt"

	// AppName is the application name used for XDG directory paths.
	AppName = "lmscrawl"
)

// Config holds all configuration options for lmscrawl.
// It is populated from CLI flags, the optional YAML config file, and the
// LMSCRAWL_COOKIE environment variable, then passed down explicitly rather
// than read from global state.
type Config struct {
	// BaseURL is the root of the LMS portal.
	BaseURL string `yaml:"base_url"`

	// Cookie is the session credential sent with every request.
	// Required: the portal serves nothing useful to anonymous clients.
	Cookie string `yaml:"cookie"`

	// Workers is the bounded worker-pool size per crawl stage.
	// Must be at least 1.
	Workers int `yaml:"workers"`

	// OutputDir is the root of the page archive and the JSON output
	// collections.
	OutputDir string `yaml:"output_dir"`

	// BatchSize is the chunk size for batched (brute-force) stages.
	BatchSize int `yaml:"batch_size"`

	// MinUserID and MaxUserID bound the numeric profile-id range
	// enumerated in brute-force mode. Brute-force mode is selected when
	// MaxUserID is positive; otherwise the normal link-following crawl
	// runs and both fields are ignored.
	MinUserID int `yaml:"min_user_id"`
	MaxUserID int `yaml:"max_user_id"`

	// SeedFile is an optional newline-delimited list of additional user
	// ids merged into the brute-force range. A missing file is not an
	// error.
	SeedFile string `yaml:"seed_file"`

	// Timeout bounds each individual fetch attempt.
	Timeout time.Duration `yaml:"timeout"`

	// DBDir is the directory holding the fetch-history SQLite database.
	// Empty disables the fetch log.
	DBDir string `yaml:"db_dir"`

	// ReportFile, when set, receives a markdown crawl summary after the
	// run.
	ReportFile string `yaml:"report_file"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose"`
}

// NewConfig creates a Config with default values.
//
// Design decision: We use a constructor instead of relying on zero values
// because several defaults are non-zero (workers, batch size, timeout) and
// the constructor doubles as documentation of what those defaults are.
func NewConfig() *Config {
	return &Config{
		BaseURL:   DefaultBaseURL,
		Workers:   DefaultWorkers,
		OutputDir: ".",
		BatchSize: DefaultBatchSize,
		SeedFile:  DefaultSeedFile,
		Timeout:   DefaultTimeout,
		DBDir:     XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for lmscrawl.
// On Linux: ~/.local/share/lmscrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for lmscrawl.
// On Linux: ~/.config/lmscrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// BruteForce reports whether the brute-force identifier-range mode is
// selected. The two modes are mutually exclusive by construction.
func (c *Config) BruteForce() bool {
	return c.MaxUserID > 0
}

// Validate checks the configuration before any network activity.
// It returns the first problem found; fixing one error often makes later
// ones irrelevant.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.Cookie == "" {
		return ErrNoCookie
	}
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BruteForce() && c.MinUserID > c.MaxUserID {
		return ErrInvalidUserIDRange
	}
	if c.BruteForce() && c.MinUserID < 0 {
		return ErrInvalidUserIDRange
	}
	return nil
}
