package plugin

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(sink Sink, rec Recorder) *PluginRuntime {
	opts := []RegistryOption{}
	if sink != nil {
		opts = append(opts, WithSink(sink))
	}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	registry := NewRegistry(zerolog.Nop(), opts...)
	return NewPluginRuntime(zerolog.Nop(), registry, stubLoader{})
}

func TestPluginRuntime_Discover(t *testing.T) {
	ctx := context.Background()

	t.Run("registers loaded files and collects failures", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "alpha/index.stub", "Alpha")
		broken := writeFile(t, root, "broken/index.stub", "!fail")
		writeFile(t, root, "empty/index.stub", "")
		writeFile(t, root, "gamma/index.stub", "Gamma")

		rec := &fakeRecorder{}
		var emitted []string
		rt := newTestRuntime(SinkFunc(func(d Descriptor) { emitted = append(emitted, d.Key) }), rec)

		result, err := rt.Discover(ctx, root)
		require.NoError(t, err)

		assert.Equal(t, []string{"alpha/index", "gamma/index"}, result.Loaded)
		assert.Equal(t, []string{broken}, result.Failed)
		assert.ErrorIs(t, result.Errors[broken], errFailedStub)
		assert.Equal(t, []string{"alpha/index", "gamma/index"}, emitted)
		assert.Equal(t, 1, rec.failures)
		assert.Equal(t, 2, rec.registered)
	})

	t.Run("duplicate key keeps the last export", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "dup/index.stub", "First Second")

		rt := newTestRuntime(nil, nil)
		result, err := rt.Discover(ctx, root)
		require.NoError(t, err)

		assert.Equal(t, []string{"dup/index"}, result.Loaded)
		desc, ok := rt.Registry().Get("dup/index")
		require.True(t, ok)
		assert.Equal(t, "Second", desc.Name)
	})

	t.Run("rescan is additive and resets instances", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a/index.stub", "A")
		writeFile(t, root, "b/index.stub", "B")

		rt := newTestRuntime(nil, nil)
		_, err := rt.Discover(ctx, root)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := rt.Invoke(ctx, "a/index", "count", nil)
			require.NoError(t, err)
		}

		other := t.TempDir()
		writeFile(t, other, "a/index.stub", "A2")
		result, err := rt.Discover(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, []string{"a/index"}, result.Loaded)

		assert.Equal(t, 2, rt.Registry().Len(), "b/index stays registered")
		v, err := rt.Invoke(ctx, "a/index", "count", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		desc, _ := rt.Registry().Get("a/index")
		assert.Equal(t, "A2", desc.Name)
	})

	t.Run("invalid root", func(t *testing.T) {
		root := writeFile(t, t.TempDir(), "file", "x")
		rt := newTestRuntime(nil, nil)
		_, err := rt.Discover(ctx, root)
		assert.Error(t, err)
	})

	t.Run("cancelled context stops the pass", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a/index.stub", "A")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		rt := newTestRuntime(nil, nil)
		result, err := rt.Discover(cctx, root)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, result.Loaded)
	})
}

func TestPluginRuntime_Shutdown(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a/index.stub", "A")

	var built atomic.Int32
	registry := NewRegistry(zerolog.Nop())
	rt := NewPluginRuntime(zerolog.Nop(), registry, stubLoader{built: &built})

	_, err := rt.Discover(ctx, root)
	require.NoError(t, err)
	_, err = rt.Invoke(ctx, "a/index", "count", nil)
	require.NoError(t, err)
	require.True(t, registry.Live("a/index"))

	require.NoError(t, rt.Shutdown())
	assert.False(t, registry.Live("a/index"))
	assert.EqualValues(t, 2, built.Load())
}
