package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrUnknownPlugin is returned when a call names a key that was never registered.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrUnknownMethod is returned when the plugin does not expose the requested method.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrMissingMember is returned when a loaded module lacks a required plugin member.
	ErrMissingMember = errors.New("missing required plugin member")

	// ErrUnknownBuiltin is returned when a manifest binds a builtin that is not compiled in.
	ErrUnknownBuiltin = errors.New("unknown builtin")
)

// DiscoveryError describes why a single candidate file could not be registered.
// Discovery logs it and moves on to the next file.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// InvocationError wraps a failure raised by plugin code while running a method
type InvocationError struct {
	Key    string
	Method string
	Err    error
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PanicError is produced when plugin code panics instead of returning an error
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin panic: %v", e.Value)
}
