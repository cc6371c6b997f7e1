package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Anonymizer AnonymizerConfig `yaml:"anonymizer" mapstructure:"anonymizer"`
	Scan       ScanConfig       `yaml:"scan" mapstructure:"scan"`
	Debug      DebugConfig      `yaml:"debug" mapstructure:"debug"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// AnonymizerConfig contains anonymization run configuration
type AnonymizerConfig struct {
	OutputSuffix string   `yaml:"output_suffix" mapstructure:"output_suffix"`
	Workers      int      `yaml:"workers" mapstructure:"workers"` // 0 = number of CPUs, capped at 8
	PolicyFile   string   `yaml:"policy_file" mapstructure:"policy_file"`
	DataDir      string   `yaml:"data_dir" mapstructure:"data_dir"`
	Sentinels    []string `yaml:"sentinels" mapstructure:"sentinels"`
	Generator    struct {
		Seed        int64 `yaml:"seed" mapstructure:"seed"` // 0 = random per run
		MaxAttempts int   `yaml:"max_attempts" mapstructure:"max_attempts"`
	} `yaml:"generator" mapstructure:"generator"`
}

// ScanConfig controls the residue scan that rechecks written output
// for original values the field policy did not reach
type ScanConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DebugConfig contains the opt-in diagnostic channel configuration.
// Everything under it exposes original sensitive values and defaults off.
type DebugConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	MappingFile string `yaml:"mapping_file" mapstructure:"mapping_file"`
}

// WatchConfig contains input-directory watch configuration
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Anonymizer: AnonymizerConfig{
			OutputSuffix: ".anonymized.xml",
			Workers:      0,
			PolicyFile:   "",
			DataDir:      "",
			Sentinels: []string{
				"unknown",
				"unk",
				"n/a",
				"na",
				"none",
				"not available",
				"no information",
			},
			Generator: struct {
				Seed        int64 `yaml:"seed" mapstructure:"seed"`
				MaxAttempts int   `yaml:"max_attempts" mapstructure:"max_attempts"`
			}{
				Seed:        0,
				MaxAttempts: 10,
			},
		},
		Scan: ScanConfig{
			Enabled: true,
		},
		Debug: DebugConfig{
			Enabled:     false,
			MappingFile: "",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File: struct {
				Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
				Path     string `yaml:"path" mapstructure:"path"`
				MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
				MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
				Compress bool   `yaml:"compress" mapstructure:"compress"`
			}{
				Enabled:  false,
				Path:     "logs/anonymizer.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
	}
}
