package plugin

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// manifestDraft pins the schema dialect to one gojsonschema understands
const manifestDraft = "http://json-schema.org/draft-07/schema#"

// ManifestSchema is the JSON Schema for builtin skill manifests (*.skill.json),
// reflected from the Manifest type
var ManifestSchema = reflectManifestSchema()

func reflectManifestSchema() string {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(&Manifest{})
	schema.Version = manifestDraft

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic("plugin: manifest schema: " + err.Error())
	}
	return string(data)
}
