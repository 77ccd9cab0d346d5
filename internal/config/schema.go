package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated config schema.
const SchemaID = "https://promptlens.dev/schemas/config.json"

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

var durationType = reflect.TypeOf(time.Duration(0))

// durationPattern accepts what time.ParseDuration accepts, e.g. "1m30s".
const durationPattern = `^[-+]?(\d+(\.\d*)?|\.\d+)(ns|us|µs|ms|s|m|h)((\d+(\.\d*)?|\.\d+)(ns|us|µs|ms|s|m|h))*$|^0$`

// JSONSchema returns the JSON Schema for config files, keyed by yaml field
// names. Durations are documented as strings since that is how they are
// written in YAML and JSON5.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:              "yaml",
			AllowAdditionalProperties: false,
			DoNotReference:            true,
			Mapper: func(t reflect.Type) *jsonschema.Schema {
				if t == durationType {
					return &jsonschema.Schema{
						Type:        "string",
						Pattern:     durationPattern,
						Description: "Go duration such as 500ms, 5s, or 720h",
					}
				}
				return nil
			},
		}
		schema := r.Reflect(&Config{})
		schema.ID = jsonschema.ID(SchemaID)
		schema.Title = "PromptLens configuration"
		schema.Description = "Experiments, metrics delivery, and collector settings for promptlens."
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}
