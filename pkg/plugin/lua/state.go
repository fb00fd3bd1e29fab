package lua

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// preludeSource defines the pure-Lua half of the skill module.
// The Go half (register, log) is attached in newVM.
const preludeSource = `
local skill = {
  CONTINUE = "continue",
  EXCLUSIVE = "exclusive",
  HANDLED = "handled",
}

function skill.base(fields)
  local p = {
    priority = 50,
    rule = {},
    task = {},
    bypassThrottle = false,
    accept = function(self, e) return skill.CONTINUE end,
    handle_unmatched = function(self, e) return nil end,
  }
  for k, v in pairs(fields or {}) do
    p[k] = v
  end
  return p
end

return skill
`

var (
	preludeOnce  sync.Once
	preludeProto *lua.FunctionProto
	preludeErr   error
)

func prelude() (*lua.FunctionProto, error) {
	preludeOnce.Do(func() {
		preludeProto, preludeErr = compile(strings.NewReader(preludeSource), "skill")
	})
	return preludeProto, preludeErr
}

// safeModules are the only names require resolves
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
	"skill":  true,
}

// vm is one sandboxed Lua state plus the constructors its chunk registered.
// A vm is not goroutine-safe; callers serialize access.
type vm struct {
	L      *lua.LState
	logger zerolog.Logger
	base   *lua.LFunction
	ctors  []*lua.LFunction
}

// newVM creates a state with only the base, table, string and math libraries
// and installs the skill module
func newVM(logger zerolog.Logger) (*vm, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	v := &vm{L: L, logger: logger}

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(v.luaPrint))

	if err := v.installSkill(); err != nil {
		L.Close()
		return nil, err
	}
	L.SetGlobal("require", L.NewFunction(v.luaRequire))
	return v, nil
}

func (v *vm) installSkill() error {
	proto, err := prelude()
	if err != nil {
		return fmt.Errorf("compile skill prelude: %w", err)
	}

	v.L.Push(v.L.NewFunctionFromProto(proto))
	if err := v.L.PCall(0, 1, nil); err != nil {
		return fmt.Errorf("run skill prelude: %w", err)
	}
	ret := v.L.Get(-1)
	v.L.Pop(1)
	mod, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("skill prelude returned %s", ret.Type())
	}

	base, _ := mod.RawGetString("base").(*lua.LFunction)
	v.base = base

	v.L.SetFuncs(mod, map[string]lua.LGFunction{
		"register": v.luaRegister,
		"log":      v.luaLog,
	})
	v.L.SetGlobal("skill", mod)
	return nil
}

// run executes a compiled module chunk and returns the constructors it registered
func (v *vm) run(proto *lua.FunctionProto) ([]*lua.LFunction, error) {
	v.ctors = nil
	v.L.Push(v.L.NewFunctionFromProto(proto))
	if err := v.L.PCall(0, 0, nil); err != nil {
		return nil, luaError(err)
	}
	return v.ctors, nil
}

// skill.register(ctor)
func (v *vm) luaRegister(L *lua.LState) int {
	ctor := L.CheckFunction(1)
	if ctor == v.base {
		v.logger.Debug().Msg("Ignoring registration of skill.base")
		return 0
	}
	v.ctors = append(v.ctors, ctor)
	return 0
}

// skill.log(level, message)
func (v *vm) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	v.logger.WithLevel(lvl).Msg(msg)
	return 0
}

// print goes to the logger; stdout belongs to the protocol
func (v *vm) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	v.logger.Info().Str("source", "print").Msg(strings.Join(parts, "\t"))
	return 0
}

func (v *vm) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)
	if !safeModules[name] {
		L.RaiseError("module %q is not available", name)
		return 0
	}
	L.Push(L.GetGlobal(name))
	return 1
}

func (v *vm) close() {
	v.L.Close()
}

func compile(src io.Reader, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(src, name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// luaError strips the stack trace from a Lua error so only the message reaches the host
func luaError(err error) error {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return &ScriptError{Message: apiErr.Object.String(), Trace: apiErr.StackTrace, cause: err}
	}
	return err
}

// ScriptError is a Lua runtime or syntax error. Error returns the message only;
// Trace keeps the stack for diagnostic logs.
type ScriptError struct {
	Message string
	Trace   string
	cause   error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.cause
}
