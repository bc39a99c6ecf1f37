// Package config loads noteflow configuration from file, environment and
// flags via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all noteflow settings. The YAML tags define the on-disk
// format written by `noteflow init`; the mapstructure tags are what viper
// decodes.
type Config struct {
	// Database is the path of the embedded SQLite database.
	Database string `mapstructure:"database" yaml:"database"`

	// Documents is the directory of document JSON files to watch.
	Documents string `mapstructure:"documents" yaml:"documents"`

	// Owner is the user identifier recorded as created_by on new records.
	Owner string `mapstructure:"owner" yaml:"owner"`

	// Debounce is the minimum interval between two sync pass starts.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// RetryDelay is the fixed delay before a failed pass is retried.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// MaxAttempts bounds consecutive failing passes before notifying.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// Interval is the periodic sync interval (0 disables).
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// DashboardPort is the WebSocket dashboard port (0 disables).
	DashboardPort int `mapstructure:"dashboard_port" yaml:"dashboard_port"`

	// LogFile, when set, routes daemon logs to a rotating file.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// DefaultFileName is the config file noteflow looks for in the working
// directory and in $HOME.
const DefaultFileName = ".noteflow.yaml"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", ".noteflow/todos.db")
	v.SetDefault("documents", "documents")
	v.SetDefault("owner", "")
	v.SetDefault("debounce", 2*time.Second)
	v.SetDefault("retry_delay", 2*time.Second)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("interval", 30*time.Second)
	v.SetDefault("dashboard_port", 0)
	v.SetDefault("log_file", "")
}

// Load reads the configuration. When path is empty, .noteflow.yaml is
// searched in the working directory and $HOME; a missing file is not an
// error and yields the defaults. NOTEFLOW_* environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NOTEFLOW")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(".noteflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write serializes the configuration to a YAML file.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
