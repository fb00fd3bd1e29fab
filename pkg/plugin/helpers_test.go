package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubLoader loads ".stub" files. Each non-empty line of the file is the
// name of one exported plugin; a line "!fail" fails the whole file.
type stubLoader struct {
	built *atomic.Int32
}

func (l stubLoader) Extensions() []string {
	return []string{".stub"}
}

func (l stubLoader) Load(ctx context.Context, path string) ([]Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var exports []Export
	for _, name := range strings.Fields(string(data)) {
		if name == "!fail" {
			return nil, errFailedStub
		}
		name := name
		exports = append(exports, Export{
			Name: name,
			Factory: func(context.Context) (Plugin, error) {
				if l.built != nil {
					l.built.Add(1)
				}
				return newStubPlugin(name), nil
			},
		})
	}
	return exports, nil
}

var errFailedStub = errors.New("stub asked to fail")

// stubPlugin counts calls and records whether it was closed
type stubPlugin struct {
	Base
	calls  int
	closed atomic.Bool

	// unstick releases calls to "stuck", which ignore their context
	unstick chan struct{}
}

func newStubPlugin(name string) *stubPlugin {
	p := &stubPlugin{Base: NewBase(name), unstick: make(chan struct{})}
	p.Handle("count", func(ctx context.Context, call Call) (any, error) {
		p.calls++
		return p.calls, nil
	})
	p.Handle("echo", func(ctx context.Context, call Call) (any, error) {
		return call.Args, nil
	})
	p.Handle("block", func(ctx context.Context, call Call) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p.Handle("stuck", func(ctx context.Context, call Call) (any, error) {
		<-p.unstick
		return "unstuck", nil
	})
	p.Handle("panic", func(ctx context.Context, call Call) (any, error) {
		panic("stub exploded")
	})
	return p
}

func (p *stubPlugin) Close() error {
	p.closed.Store(true)
	return nil
}

func writeFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
