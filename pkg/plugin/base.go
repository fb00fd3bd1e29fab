package plugin

import (
	"context"
	"fmt"
)

// MethodFunc is the signature of a named plugin method
type MethodFunc func(ctx context.Context, call Call) (any, error)

// Base carries the default metadata and method table for Go skills.
// Embed it, set the fields in the constructor and register methods with Handle.
type Base struct {
	Name           string
	Priority       int
	BypassThrottle bool
	Rules          []Rule
	Tasks          []ScheduledTask

	methods map[string]MethodFunc
}

// NewBase returns a Base with the default priority and no rules or tasks
func NewBase(name string) Base {
	return Base{
		Name:     name,
		Priority: DefaultPriority,
		methods:  make(map[string]MethodFunc),
	}
}

// Handle registers fn under the given method name, replacing any previous one
func (b *Base) Handle(name string, fn MethodFunc) {
	if b.methods == nil {
		b.methods = make(map[string]MethodFunc)
	}
	b.methods[name] = fn
}

// Descriptor implements Plugin
func (b *Base) Descriptor() Descriptor {
	return Descriptor{
		Name:           b.Name,
		Priority:       b.Priority,
		BypassThrottle: b.BypassThrottle,
		Rules:          append([]Rule(nil), b.Rules...),
		Tasks:          append([]ScheduledTask(nil), b.Tasks...),
	}
}

// Accept implements Plugin. The default lets the event continue.
func (b *Base) Accept(ctx context.Context, event Event) (AcceptResult, error) {
	return AcceptContinue, nil
}

// HasMethod implements Plugin
func (b *Base) HasMethod(name string) bool {
	if name == MethodAccept || name == MethodUnmatched {
		return true
	}
	_, ok := b.methods[name]
	return ok
}

// Invoke implements Plugin. Embedders that override Accept must also route
// MethodAccept themselves, see InvokeAccept.
func (b *Base) Invoke(ctx context.Context, call Call) (any, error) {
	if fn, ok := b.methods[call.Method]; ok {
		return fn(ctx, call)
	}
	switch call.Method {
	case MethodAccept:
		return InvokeAccept(ctx, b, call)
	case MethodUnmatched:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
}

// InvokeAccept runs p.Accept for a call addressed to MethodAccept
func InvokeAccept(ctx context.Context, p Plugin, call Call) (any, error) {
	result, err := p.Accept(ctx, call.Event)
	if err != nil {
		return nil, err
	}
	return string(result), nil
}
