package bridge

import (
	"github.com/rs/zerolog"

	"github.com/harun/skillbridge/pkg/plugin"
	"github.com/harun/skillbridge/pkg/plugin/lua"
	"github.com/harun/skillbridge/pkg/protocol"
	_ "github.com/harun/skillbridge/pkg/skills"
)

// NewRuntime builds a plugin runtime with every supported module loader:
// Lua scripts and manifests bound to the compiled-in skills
func NewRuntime(logger zerolog.Logger, opts ...plugin.RegistryOption) *plugin.PluginRuntime {
	registry := plugin.NewRegistry(logger, opts...)
	return plugin.NewPluginRuntime(logger, registry,
		lua.NewLoader(logger),
		plugin.NewManifestLoader(logger, plugin.Builtins),
	)
}

// RegistrationSink forwards every registration to the host as plugin_registered
func RegistrationSink(enc *protocol.Encoder) plugin.Sink {
	return plugin.SinkFunc(func(desc plugin.Descriptor) {
		_ = enc.Encode(protocol.Registered(desc))
	})
}
