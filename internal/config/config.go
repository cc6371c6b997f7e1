package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/eicr-anonymizer/")
	viper.AddConfigPath("$HOME/.eicr-anonymizer/")

	// Environment variable overrides
	viper.SetEnvPrefix("EICR")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks a configuration after command line overrides have been applied
func Validate(config *Config) error {
	return validateConfig(config)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	suffix := config.Anonymizer.OutputSuffix
	if suffix == "" || suffix == ".xml" || !strings.HasSuffix(suffix, ".xml") {
		return fmt.Errorf("invalid output suffix: %q (must end in .xml and differ from plain .xml)", suffix)
	}

	if config.Anonymizer.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", config.Anonymizer.Workers)
	}

	if config.Anonymizer.Generator.MaxAttempts < 1 {
		return fmt.Errorf("invalid generator max attempts: %d (must be at least 1)", config.Anonymizer.Generator.MaxAttempts)
	}

	if config.Watch.Enabled && config.Watch.Debounce <= 0 {
		return fmt.Errorf("invalid watch debounce: %s (must be positive)", config.Watch.Debounce)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
