package cli

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/skillbridge/internal/bridge"
	"github.com/harun/skillbridge/internal/config"
	"github.com/harun/skillbridge/internal/logger"
	"github.com/harun/skillbridge/internal/metrics"
	"github.com/harun/skillbridge/internal/watcher"
	"github.com/harun/skillbridge/pkg/plugin"
	"github.com/harun/skillbridge/pkg/plugin/lua"
	"github.com/harun/skillbridge/pkg/protocol"
)

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("call-timeout", 30*time.Second, "upper bound for a single plugin call (0 disables)")
	cmd.Flags().Int("max-in-flight", 1, "calls handled at once; 1 keeps strict request order")
	cmd.Flags().Bool("watch", false, "rescan the plugin root when files change")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.NewLoader(opts.cfgFile).WithFlags(cmd.Flags()).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:         cfg.Logging.Level,
		ProtocolLevel: cfg.Logging.ProtocolLevel,
		File:          cfg.Logging.File,
		Pretty:        cfg.Logging.Pretty,
		Redaction:     cfg.Logging.Redaction,
		MaxSize:       cfg.Logging.MaxSize,
		MaxAge:        cfg.Logging.MaxAge,
		Compress:      cfg.Logging.Compress,
	}, cmd.ErrOrStderr())
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.Zerolog()

	out := bufio.NewWriter(cmd.OutOrStdout())
	enc := protocol.NewEncoder(out, log.Diagnostic())
	log.Protocol().Bind(logger.EmitterFunc(func(level, message string) error {
		return enc.Encode(protocol.Log(level, message))
	}))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := metrics.NewMetrics()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, log.Diagnostic()); err != nil {
				zl.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint failed")
			}
		}()
	}

	runtime := bridge.NewRuntime(zl,
		plugin.WithSink(bridge.RegistrationSink(enc)),
		plugin.WithRecorder(m),
		plugin.WithConstructTimeout(cfg.CallTimeout),
	)

	lc := bridge.NewLifecycle()
	b := bridge.New(bridge.Config{
		PluginsDir:  cfg.PluginsDir,
		CallTimeout: cfg.CallTimeout,
		MaxInFlight: cfg.MaxInFlight,
	}, runtime, cmd.InOrStdin(), enc, zl,
		bridge.WithDecodeRecorder(m),
		bridge.WithLifecycle(lc),
	)

	stopSignals := bridge.HandleSignals(lc, zl)
	defer stopSignals()

	if cfg.Watch.Enabled {
		stopWatch := startWatcher(ctx, cfg, b, zl)
		defer stopWatch()
	}

	zl.Debug().
		Str("plugins_dir", cfg.PluginsDir).
		Dur("call_timeout", cfg.CallTimeout).
		Int("max_in_flight", cfg.MaxInFlight).
		Msg("Starting bridge")

	return b.Run(ctx)
}

// startWatcher rescans the plugin root after changes. A root that cannot be
// watched is logged and the bridge runs without rescans.
func startWatcher(ctx context.Context, cfg *config.Config, b *bridge.Bridge, logger zerolog.Logger) func() {
	w, err := watcher.New(watcher.Config{
		Root:       cfg.PluginsDir,
		Debounce:   cfg.Watch.Debounce,
		Extensions: []string{lua.Extension, plugin.ManifestExtension},
		OnChange: func(paths []string) {
			logger.Info().Strs("paths", paths).Msg("Plugin files changed, rescanning")
			if _, err := b.Rescan(ctx, cfg.PluginsDir); err != nil {
				logger.Warn().Err(err).Msg("Rescan after change failed")
			}
		},
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("File watching disabled")
		return func() {}
	}
	if err := w.Start(); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.PluginsDir).Msg("File watching disabled")
		_ = w.Stop()
		return func() {}
	}
	return func() { _ = w.Stop() }
}
