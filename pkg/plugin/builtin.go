package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// BuiltinFactory builds a compiled-in skill from the config block of its manifest
type BuiltinFactory func(config map[string]any) (Plugin, error)

// BuiltinTable collects the compiled-in skills a manifest can bind to
type BuiltinTable struct {
	factories map[string]BuiltinFactory
	mu        sync.RWMutex
}

// NewBuiltinTable creates an empty table
func NewBuiltinTable() *BuiltinTable {
	return &BuiltinTable{
		factories: make(map[string]BuiltinFactory),
	}
}

// Builtins is the process-wide table filled from package init functions
var Builtins = NewBuiltinTable()

// RegisterBuiltin adds a factory to the process-wide table
func RegisterBuiltin(name string, factory BuiltinFactory) {
	if err := Builtins.Register(name, factory); err != nil {
		panic(err)
	}
}

// Register adds a named factory. Names are unique within a table.
func (t *BuiltinTable) Register(name string, factory BuiltinFactory) error {
	if name == "" {
		return fmt.Errorf("builtin name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("builtin %s: factory cannot be nil", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.factories[name]; exists {
		return fmt.Errorf("builtin %s already registered", name)
	}
	t.factories[name] = factory
	return nil
}

// Lookup returns the factory registered under name
func (t *BuiltinTable) Lookup(name string) (BuiltinFactory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[name]
	return f, ok
}

// Names returns the registered builtin names, sorted
func (t *BuiltinTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.factories))
	for name := range t.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
