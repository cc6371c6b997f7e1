package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// Load configures the process-global viper, so each Load test resets it.
func resetViper(t *testing.T) {
	t.Helper()
	t.Cleanup(viper.Reset)
}

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Anonymizer.OutputSuffix != ".anonymized.xml" {
		t.Errorf("Expected default suffix .anonymized.xml, got %q", cfg.Anonymizer.OutputSuffix)
	}
	if cfg.Anonymizer.Generator.MaxAttempts != 10 {
		t.Errorf("Expected 10 generation attempts, got %d", cfg.Anonymizer.Generator.MaxAttempts)
	}
	if len(cfg.Anonymizer.Sentinels) == 0 {
		t.Error("Expected default sentinel values")
	}
	if !cfg.Scan.Enabled {
		t.Error("Expected the residue scan to default on")
	}
	if cfg.Debug.Enabled {
		t.Error("Expected debug to default off")
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected a 500ms debounce, got %s", cfg.Watch.Debounce)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"suffix without xml extension", func(c *Config) { c.Anonymizer.OutputSuffix = ".anon" }, false},
		{"suffix equal to plain xml", func(c *Config) { c.Anonymizer.OutputSuffix = ".xml" }, false},
		{"empty suffix", func(c *Config) { c.Anonymizer.OutputSuffix = "" }, false},
		{"negative workers", func(c *Config) { c.Anonymizer.Workers = -1 }, false},
		{"zero generation attempts", func(c *Config) { c.Anonymizer.Generator.MaxAttempts = 0 }, false},
		{"watch without debounce", func(c *Config) {
			c.Watch.Enabled = true
			c.Watch.Debounce = 0
		}, false},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }, false},
		{"custom valid values", func(c *Config) {
			c.Anonymizer.OutputSuffix = ".deid.xml"
			c.Anonymizer.Workers = 4
			c.Logging.Level = "debug"
			c.Logging.Format = "json"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.valid && err != nil {
				t.Errorf("Expected valid configuration, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Anonymizer.OutputSuffix != ".anonymized.xml" {
		t.Errorf("Expected default suffix, got %q", cfg.Anonymizer.OutputSuffix)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `anonymizer:
  workers: 3
  generator:
    seed: 42
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Anonymizer.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Anonymizer.Workers)
	}
	if cfg.Anonymizer.Generator.Seed != 42 {
		t.Errorf("Expected seed 42, got %d", cfg.Anonymizer.Generator.Seed)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Anonymizer.OutputSuffix != ".anonymized.xml" {
		t.Errorf("Expected unset keys to keep their defaults, got %q", cfg.Anonymizer.OutputSuffix)
	}
	if cfg.Anonymizer.Generator.MaxAttempts != 10 {
		t.Errorf("Expected unset nested keys to keep their defaults, got %d", cfg.Anonymizer.Generator.MaxAttempts)
	}
}

func TestLoadRejectsBadConfiguration(t *testing.T) {
	t.Run("invalid values", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("anonymizer:\n  output_suffix: .txt\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
			t.Errorf("Expected an invalid configuration error, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(":\n  - ["), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected a parse error")
		}
	})
}
