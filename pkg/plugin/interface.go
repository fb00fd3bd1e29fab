package plugin

import (
	"context"
)

// Plugin is the capability set every skill implements.
// Descriptor reports the declared metadata; Invoke dispatches a named method.
type Plugin interface {
	// Descriptor returns the declared metadata. Key is filled in by the registry.
	Descriptor() Descriptor

	// Accept decides whether the plugin takes part in handling an event
	Accept(ctx context.Context, event Event) (AcceptResult, error)

	// HasMethod reports whether Invoke can dispatch the named method
	HasMethod(name string) bool

	// Invoke runs a named method with the per-call context.
	// Implementations must honour ctx cancellation where they block.
	Invoke(ctx context.Context, call Call) (any, error)
}

// Factory constructs a fresh plugin instance. ctx bounds construction.
// The registry calls it once for the descriptor snapshot and once per live instance.
type Factory func(ctx context.Context) (Plugin, error)

// Export is one plugin a loaded module registers
type Export struct {
	Name    string
	Factory Factory
}

// ModuleLoader turns a candidate file into the plugins it exports
type ModuleLoader interface {
	// Extensions lists the file suffixes this loader handles, e.g. ".lua"
	Extensions() []string

	// Load reads the file and returns its exports. A non-nil error fails the whole file.
	Load(ctx context.Context, path string) ([]Export, error)
}

// Sink receives registry events destined for the host process
type Sink interface {
	PluginRegistered(desc Descriptor)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(desc Descriptor)

func (f SinkFunc) PluginRegistered(desc Descriptor) {
	f(desc)
}
