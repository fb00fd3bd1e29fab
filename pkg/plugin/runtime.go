package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PluginRuntime runs discovery passes and feeds their results into a Registry
type PluginRuntime struct {
	logger    zerolog.Logger
	discovery *PluginDiscovery
	registry  *Registry
	mu        sync.Mutex
}

// NewPluginRuntime creates a runtime that loads modules with the given loaders
func NewPluginRuntime(logger zerolog.Logger, registry *Registry, loaders ...ModuleLoader) *PluginRuntime {
	return &PluginRuntime{
		logger:    logger.With().Str("component", "plugin-runtime").Logger(),
		discovery: NewPluginDiscovery(logger, loaders...),
		registry:  registry,
	}
}

// Registry returns the registry this runtime registers into
func (r *PluginRuntime) Registry() *Registry {
	return r.registry
}

// Discover scans root and registers every plugin it can load. Failures are
// per file: they are logged, collected in the result and do not stop the pass.
// Passes are additive; keys missing from root stay registered.
func (r *PluginRuntime) Discover(ctx context.Context, root string) (*LoadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger.With().Str("scan", uuid.NewString()).Str("dir", root).Logger()
	logger.Info().Msg("Discovering plugins")

	result := newLoadResult()

	candidates, err := r.discovery.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("plugin discovery failed: %w", err)
	}

	seen := make(map[string]string)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exports, err := c.Loader.Load(ctx, c.Path)
		if err != nil {
			r.fail(logger, result, c.Path, err)
			continue
		}
		if len(exports) == 0 {
			logger.Debug().Str("path", c.Path).Msg("Module registers no plugins")
			continue
		}

		for _, exp := range exports {
			if prev, dup := seen[c.Key]; dup {
				logger.Warn().
					Str("key", c.Key).
					Str("previous", prev).
					Str("path", c.Path).
					Str("export", exp.Name).
					Msg("Duplicate plugin key, last registration wins")
			}

			if _, err := r.registry.Register(ctx, c.Key, c.Path, exp.Factory); err != nil {
				r.fail(logger, result, c.Path, fmt.Errorf("%s: %w", exp.Name, err))
				continue
			}
			if _, dup := seen[c.Key]; !dup {
				result.Loaded = append(result.Loaded, c.Key)
			}
			seen[c.Key] = c.Path + "#" + exp.Name
		}
	}

	logger.Info().
		Int("loaded", len(result.Loaded)).
		Int("failed", len(result.Failed)).
		Msg("Plugin discovery complete")

	return result, nil
}

func (r *PluginRuntime) fail(logger zerolog.Logger, result *LoadResult, path string, err error) {
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		derr = &DiscoveryError{Path: path, Err: err}
	}

	if _, already := result.Errors[path]; !already {
		result.Failed = append(result.Failed, path)
		result.Errors[path] = derr
	} else {
		result.Errors[path] = errors.Join(result.Errors[path], derr)
	}

	if r.registry.recorder != nil {
		r.registry.recorder.ObserveDiscoveryFailure()
	}
	logger.Error().Err(derr).Str("path", path).Msg("Failed to load plugin")
}

// Invoke forwards to the registry
func (r *PluginRuntime) Invoke(ctx context.Context, key, method string, args []any) (any, error) {
	return r.registry.Invoke(ctx, key, method, args)
}

// Shutdown closes every live plugin instance
func (r *PluginRuntime) Shutdown() error {
	r.logger.Info().Msg("Shutting down plugin runtime")
	return r.registry.Close()
}
