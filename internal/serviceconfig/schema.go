package serviceconfig

import "github.com/invopop/jsonschema"

// JSONSchema reflects Config into a JSON Schema document, the same way the
// teacher's config tool documents its own configuration file for IDE
// autocompletion and validation.
func JSONSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "File Services Backend Configuration"
	schema.Description = "Configuration schema shared by ucs, fis, ifrs and dcs"
	return schema
}
