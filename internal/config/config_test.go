package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Cookie = "MoodleSession=test"
	return cfg
}

// TestNewConfig tests the constructor defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.SeedFile != DefaultSeedFile {
		t.Errorf("SeedFile = %q, want %q", cfg.SeedFile, DefaultSeedFile)
	}
	if cfg.OutputDir != "." {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, ".")
	}
}

// TestConfigBruteForce tests mode selection.
func TestConfigBruteForce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		minUserID int
		maxUserID int
		want      bool
	}{
		{name: "defaults select normal mode", minUserID: 0, maxUserID: 0, want: false},
		{name: "positive max selects brute force", minUserID: 1, maxUserID: 100, want: true},
		{name: "zero min with positive max", minUserID: 0, maxUserID: 10, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			cfg.MinUserID = tt.minUserID
			cfg.MaxUserID = tt.maxUserID
			if got := cfg.BruteForce(); got != tt.want {
				t.Errorf("BruteForce() = %t, want %t", got, tt.want)
			}
		})
	}
}

// TestConfigValidate tests each validation rule through its sentinel error.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: nil,
		},
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.BaseURL = "" },
			wantErr: ErrNoBaseURL,
		},
		{
			name:    "missing cookie",
			mutate:  func(c *Config) { c.Cookie = "" },
			wantErr: ErrNoCookie,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: ErrInvalidWorkers,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: ErrInvalidBatchSize,
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name: "inverted user id range",
			mutate: func(c *Config) {
				c.MinUserID = 100
				c.MaxUserID = 10
			},
			wantErr: ErrInvalidUserIDRange,
		},
		{
			name: "negative minimum user id",
			mutate: func(c *Config) {
				c.MinUserID = -1
				c.MaxUserID = 10
			},
			wantErr: ErrInvalidUserIDRange,
		},
		{
			name: "valid brute force range",
			mutate: func(c *Config) {
				c.MinUserID = 1
				c.MaxUserID = 50000
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestConfigValidateTimeout tests that any positive timeout is accepted.
func TestConfigValidateTimeout(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Timeout = time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v for a positive timeout", err)
	}
}
