package lua

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/harun/skillbridge/pkg/plugin"
)

// Extension is the file suffix of Lua skill scripts
const Extension = ".lua"

// Loader loads Lua skill scripts. Each script is compiled once; every plugin
// instance gets its own state running that compiled chunk.
type Loader struct {
	logger zerolog.Logger
}

var _ plugin.ModuleLoader = (*Loader)(nil)

// NewLoader creates a Lua module loader
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "lua-loader").Logger(),
	}
}

// Extensions implements plugin.ModuleLoader
func (l *Loader) Extensions() []string {
	return []string{Extension}
}

// Load implements plugin.ModuleLoader. The script runs once in a scratch state
// to find out how many constructors it registers; a syntax or runtime error at
// this point fails the file.
func (l *Loader) Load(ctx context.Context, path string) ([]plugin.Export, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	proto, err := compile(bytes.NewReader(src), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	logger := l.logger.With().Str("script", path).Logger()

	scratch, err := newVM(logger)
	if err != nil {
		return nil, err
	}
	scratch.L.SetContext(ctx)
	ctors, err := scratch.run(proto)
	scratch.close()
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), Extension)
	exports := make([]plugin.Export, 0, len(ctors))
	for i := range ctors {
		exports = append(exports, plugin.Export{
			Name:    fmt.Sprintf("%s#%d", stem, i+1),
			Factory: l.factory(proto, i, logger),
		})
	}
	return exports, nil
}

// factory returns a constructor for the index-th registered skill of a chunk
func (l *Loader) factory(proto *lua.FunctionProto, index int, logger zerolog.Logger) plugin.Factory {
	return func(ctx context.Context) (plugin.Plugin, error) {
		v, err := newVM(logger)
		if err != nil {
			return nil, err
		}
		v.L.SetContext(ctx)
		defer v.L.RemoveContext()

		ctors, err := v.run(proto)
		if err != nil {
			v.close()
			return nil, err
		}
		if index >= len(ctors) {
			v.close()
			return nil, fmt.Errorf("script registered %d skills on reload, expected at least %d", len(ctors), index+1)
		}

		if err := v.L.CallByParam(lua.P{Fn: ctors[index], NRet: 1, Protect: true}); err != nil {
			v.close()
			return nil, fmt.Errorf("constructor: %w", luaError(err))
		}
		ret := v.L.Get(-1)
		v.L.Pop(1)

		self, ok := ret.(*lua.LTable)
		if !ok {
			v.close()
			return nil, fmt.Errorf("%w: constructor returned %s, want a table", plugin.ErrMissingMember, ret.Type())
		}

		p, err := newLuaPlugin(v, self)
		if err != nil {
			v.close()
			return nil, err
		}
		return p, nil
	}
}
