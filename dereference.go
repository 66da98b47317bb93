package hypermedia

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/swaggest/jsonschema-go"
)

// DereferenceSchema inlines references to other registered types as
// definitions, so the schema can be validated on its own.
func (a *API) DereferenceSchema(schema []byte) ([]byte, error) {
	var sch jsonschema.Schema
	if err := json.Unmarshal(schema, &sch); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: schema[%s] %w", string(schema), err)
	}

	pending := []*jsonschema.Schema{&sch}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		var err error
		walkRefs(current, func(ref *string) {
			if err != nil || !strings.HasPrefix(*ref, "#/definitions/") {
				return
			}
			id := strings.TrimPrefix(*ref, "#/definitions/")
			if _, ok := sch.Definitions[id]; ok {
				return
			}

			// an external reference: inline the registered type's schema
			def, ok := a.GetType(id)
			if !ok {
				err = fmt.Errorf("type %s not found", id)
				return
			}

			var defSch jsonschema.Schema
			if err = json.Unmarshal(def.AttributeSchema(), &defSch); err != nil {
				err = fmt.Errorf("type %s: %w", id, err)
				return
			}
			sch.WithDefinitionsItem(id, defSch.ToSchemaOrBool())
			pending = append(pending, &defSch)
		})
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(sch)
}
