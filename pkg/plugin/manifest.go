package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// ManifestExtension is the suffix of builtin skill manifests
const ManifestExtension = ".skill.json"

// Manifest binds a plugin directory entry to a compiled-in skill
type Manifest struct {
	Builtin     string         `json:"builtin" jsonschema:"pattern=^[a-z0-9][a-z0-9_-]*$,description=Name of the compiled-in skill to bind"`
	Description string         `json:"description,omitempty" jsonschema:"description=Free-form note for operators"`
	Config      map[string]any `json:"config,omitempty" jsonschema:"description=Passed unchanged to the builtin factory"`
}

// ManifestLoader loads *.skill.json manifests and resolves them against a builtin table
type ManifestLoader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
	builtins     *BuiltinTable
}

// NewManifestLoader creates a manifest loader over the given builtin table
func NewManifestLoader(logger zerolog.Logger, builtins *BuiltinTable) *ManifestLoader {
	return &ManifestLoader{
		logger:       logger.With().Str("component", "manifest-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
		builtins:     builtins,
	}
}

// Extensions implements ModuleLoader
func (m *ManifestLoader) Extensions() []string {
	return []string{ManifestExtension}
}

// Load implements ModuleLoader
func (m *ManifestLoader) Load(ctx context.Context, path string) ([]Export, error) {
	manifest, err := m.LoadManifest(path)
	if err != nil {
		return nil, err
	}

	factory, ok := m.builtins.Lookup(manifest.Builtin)
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownBuiltin, manifest.Builtin, strings.Join(m.builtins.Names(), ", "))
	}

	config := manifest.Config
	return []Export{{
		Name: manifest.Builtin,
		Factory: func(context.Context) (Plugin, error) {
			return factory(config)
		},
	}}, nil
}

// LoadManifest reads and validates a manifest file
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := m.validateSchema(data); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	m.logger.Debug().
		Str("path", path).
		Str("builtin", manifest.Builtin).
		Msg("Loaded manifest")

	return &manifest, nil
}

func (m *ManifestLoader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(m.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}
