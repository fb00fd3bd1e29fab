package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SKILLBRIDGE_PLUGINS_DIR
const EnvPrefix = "SKILLBRIDGE"

// FlagKeys maps command-line flag names to config keys
var FlagKeys = map[string]string{
	"plugins-dir":   "plugins_dir",
	"call-timeout":  "call_timeout",
	"max-in-flight": "max_in_flight",
	"log-level":     "logging.level",
	"watch":         "watch.enabled",
	"metrics-addr":  "metrics.addr",
}

// Loader handles configuration loading. Precedence, lowest first: defaults,
// config file, environment, flags that were set explicitly.
type Loader struct {
	configPath string
	flags      *pflag.FlagSet
}

// NewLoader creates a new config loader. An empty configPath skips the file.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// WithFlags binds the flags named in FlagKeys over the loaded values
func (l *Loader) WithFlags(flags *pflag.FlagSet) *Loader {
	l.flags = flags
	return l
}

// Load reads the configuration and validates it
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if l.flags != nil {
		for name, key := range FlagKeys {
			f := l.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// ErrInvalid marks a configuration that loaded but failed validation
var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("plugins_dir", d.PluginsDir)
	v.SetDefault("call_timeout", d.CallTimeout)
	v.SetDefault("max_in_flight", d.MaxInFlight)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.protocol_level", d.Logging.ProtocolLevel)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
