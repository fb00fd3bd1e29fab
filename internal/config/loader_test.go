package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := NewLoader("").Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "nope.json")).Load()
		assert.Error(t, err)
	})

	t.Run("json file", func(t *testing.T) {
		path := writeConfig(t, "skillbridge.json", `{
			"plugins_dir": "skills",
			"call_timeout": "5s",
			"max_in_flight": 4,
			"logging": {"level": "debug"}
		}`)

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "skills", cfg.PluginsDir)
		assert.Equal(t, 5*time.Second, cfg.CallTimeout)
		assert.Equal(t, 4, cfg.MaxInFlight)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "info", cfg.Logging.ProtocolLevel)
		assert.True(t, cfg.Logging.Redaction)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := writeConfig(t, "skillbridge.yaml", "watch:\n  enabled: true\n  debounce: 1s\nmetrics:\n  addr: \":9100\"\n")

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.True(t, cfg.Watch.Enabled)
		assert.Equal(t, time.Second, cfg.Watch.Debounce)
		assert.Equal(t, ":9100", cfg.Metrics.Addr)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "skillbridge.json", `{"max_in_flight": 0}`)
		_, err := NewLoader(path).Load()
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestLoaderPrecedence(t *testing.T) {
	path := writeConfig(t, "skillbridge.json", `{"plugins_dir": "from-file", "max_in_flight": 2}`)
	t.Setenv("SKILLBRIDGE_PLUGINS_DIR", "from-env")
	t.Setenv("SKILLBRIDGE_LOGGING_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("plugins-dir", "plugins/lua", "")
	flags.Int("max-in-flight", 1, "")
	flags.Duration("call-timeout", 30*time.Second, "")
	require.NoError(t, flags.Parse([]string{"--call-timeout=2s"}))

	cfg, err := NewLoader(path).WithFlags(flags).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.PluginsDir)
	assert.Equal(t, 2, cfg.MaxInFlight)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
