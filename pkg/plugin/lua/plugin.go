package lua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/harun/skillbridge/pkg/plugin"
)

// luaPlugin is one constructed skill table bound to its own Lua state
type luaPlugin struct {
	vm   *vm
	self *lua.LTable
	desc plugin.Descriptor
}

var _ plugin.Plugin = (*luaPlugin)(nil)

func newLuaPlugin(v *vm, self *lua.LTable) (*luaPlugin, error) {
	if err := checkMembers(self); err != nil {
		return nil, err
	}
	desc, err := readDescriptor(self)
	if err != nil {
		return nil, err
	}
	return &luaPlugin{vm: v, self: self, desc: desc}, nil
}

// checkMembers verifies the table carries the members every skill must declare
func checkMembers(t *lua.LTable) error {
	required := []struct {
		field string
		typ   lua.LValueType
	}{
		{"name", lua.LTString},
		{"priority", lua.LTNumber},
		{"rule", lua.LTTable},
		{"task", lua.LTTable},
		{plugin.MethodAccept, lua.LTFunction},
	}

	var errs []error
	for _, m := range required {
		got := t.RawGetString(m.field).Type()
		if got != m.typ {
			errs = append(errs, fmt.Errorf("%w: %s must be a %s, got %s", plugin.ErrMissingMember, m.field, m.typ, got))
		}
	}
	if bt := t.RawGetString("bypassThrottle"); bt != lua.LNil && bt.Type() != lua.LTBool {
		errs = append(errs, fmt.Errorf("%w: bypassThrottle must be a boolean, got %s", plugin.ErrMissingMember, bt.Type()))
	}
	return errors.Join(errs...)
}

func readDescriptor(t *lua.LTable) (plugin.Descriptor, error) {
	desc := plugin.Descriptor{
		Name:           lua.LVAsString(t.RawGetString("name")),
		Priority:       int(lua.LVAsNumber(t.RawGetString("priority"))),
		BypassThrottle: lua.LVAsBool(t.RawGetString("bypassThrottle")),
	}

	if err := decodeList(t.RawGetString("rule"), &desc.Rules); err != nil {
		return plugin.Descriptor{}, fmt.Errorf("rule: %w", err)
	}
	if err := decodeList(t.RawGetString("task"), &desc.Tasks); err != nil {
		return plugin.Descriptor{}, fmt.Errorf("task: %w", err)
	}
	return desc, nil
}

// decodeList converts a Lua array of tables into a typed slice through its JSON
// form, so the field defaults of the target type apply
func decodeList(lv lua.LValue, out any) error {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil
	}

	var list []any
	switch v := ToGoValue(t).(type) {
	case []any:
		list = v
	case map[string]any:
		if len(v) > 0 {
			return errors.New("expected a list")
		}
		return nil
	}

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Descriptor implements plugin.Plugin
func (p *luaPlugin) Descriptor() plugin.Descriptor {
	d := p.desc
	d.Rules = append([]plugin.Rule(nil), p.desc.Rules...)
	d.Tasks = append([]plugin.ScheduledTask(nil), p.desc.Tasks...)
	return d
}

// Accept implements plugin.Plugin
func (p *luaPlugin) Accept(ctx context.Context, event plugin.Event) (plugin.AcceptResult, error) {
	v, err := p.call(ctx, plugin.MethodAccept, event, nil)
	if err != nil {
		return "", err
	}
	return plugin.ParseAcceptResult(v)
}

// HasMethod implements plugin.Plugin
func (p *luaPlugin) HasMethod(name string) bool {
	_, ok := p.self.RawGetString(name).(*lua.LFunction)
	return ok
}

// Invoke implements plugin.Plugin. The function is called as
// tbl[method](tbl, event, ...rest) where rest are the arguments after the event.
func (p *luaPlugin) Invoke(ctx context.Context, call plugin.Call) (any, error) {
	if call.Method == plugin.MethodAccept {
		return plugin.InvokeAccept(ctx, p, call)
	}
	args := call.Args
	if call.Event != nil && len(args) > 0 {
		args = args[1:]
	}
	return p.call(ctx, call.Method, call.Event, args)
}

func (p *luaPlugin) call(ctx context.Context, method string, event plugin.Event, args []any) (any, error) {
	fn, ok := p.self.RawGetString(method).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrUnknownMethod, method)
	}

	L := p.vm.L
	params := make([]lua.LValue, 0, len(args)+2)
	params = append(params, p.self)
	if event != nil {
		params = append(params, ToLuaValue(L, map[string]any(event)))
	} else {
		params = append(params, L.NewTable())
	}
	for _, arg := range args {
		params = append(params, ToLuaValue(L, arg))
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, params...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		serr := luaError(err)
		var script *ScriptError
		if errors.As(serr, &script) {
			p.vm.logger.Debug().Str("method", method).Str("trace", script.Trace).Msg("Lua call failed")
		}
		return nil, serr
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ToGoValue(ret), nil
}

// Close releases the Lua state
func (p *luaPlugin) Close() error {
	p.vm.close()
	return nil
}
