package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the skillbridge configuration
type Config struct {
	// Plugin root scanned at startup and on rescans without a dir
	PluginsDir string `json:"plugins_dir" mapstructure:"plugins_dir"`

	// Upper bound for a single plugin call; 0 disables it
	CallTimeout time.Duration `json:"call_timeout" mapstructure:"call_timeout"`

	// Calls processed at once; 1 keeps strict request order
	MaxInFlight int `json:"max_in_flight" mapstructure:"max_in_flight"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Rescan on file changes
	Watch WatchConfig `json:"watch" mapstructure:"watch"`

	// Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	ProtocolLevel string `json:"protocol_level" mapstructure:"protocol_level"`
	Pretty        bool   `json:"pretty" mapstructure:"pretty"`
	File          string `json:"file" mapstructure:"file"`
	MaxSize       int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge        int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	Redaction     bool   `json:"redaction" mapstructure:"redaction"`
}

// WatchConfig controls rescans triggered by changes under the plugin root
type WatchConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// MetricsConfig controls the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		PluginsDir:  "plugins/lua",
		CallTimeout: 30 * time.Second,
		MaxInFlight: 1,
		Logging: LoggingConfig{
			Level:         "info",
			ProtocolLevel: "info",
			MaxSize:       100,
			MaxAge:        7,
			Compress:      true,
			Redaction:     true,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if c.PluginsDir == "" {
		return fmt.Errorf("plugins_dir cannot be empty")
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout cannot be negative, got %s", c.CallTimeout)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be at least 1, got %d", c.MaxInFlight)
	}
	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if err := v.ValidateLogLevel(c.Logging.ProtocolLevel); err != nil {
		return fmt.Errorf("logging.protocol_level: %w", err)
	}
	if c.Logging.MaxSize < 0 || c.Logging.MaxAge < 0 {
		return fmt.Errorf("logging.max_size and logging.max_age cannot be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce cannot be negative, got %s", c.Watch.Debounce)
	}
	if c.Metrics.Addr != "" {
		if err := v.ValidateListenAddr(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}
	return nil
}
