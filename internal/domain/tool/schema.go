package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor reflects the JSON schema of v's type. Fields without omitempty
// are required and additional properties are rejected.
func SchemaFor(v any) json.RawMessage {
	s := reflector.Reflect(v)
	s.Version = ""
	s.ID = ""
	raw, err := json.Marshal(s)
	if err != nil {
		panic("tool: reflect schema: " + err.Error())
	}
	return raw
}
