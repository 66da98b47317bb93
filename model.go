package hypermedia

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/swaggest/jsonschema-go"
)

var _ jsonschema.Exposer = (*Model)(nil)

// Model exposes the attribute schema of a registered type to schema reflectors.
type Model struct {
	jsonschema.Struct
	Def TypeDef
}

func (m Model) Name() string {
	return m.Def.Name
}

// IsNil reports whether the type declares no attribute schema.
func (m Model) IsNil() bool {
	return len(m.Def.Schema) == 0
}

func (m Model) JSONSchema() (jsonschema.Schema, error) {
	var sch jsonschema.Schema
	if err := json.Unmarshal(m.Def.AttributeSchema(), &sch); err != nil {
		return jsonschema.Schema{}, fmt.Errorf("error unmarshalling schema for %s: %w", m.Name(), err)
	}

	ex := make(map[string]any)
	if err := json.Unmarshal(m.Def.AttributeExample(), &ex); err != nil {
		return jsonschema.Schema{}, fmt.Errorf("error unmarshalling example for %s : %w", m.Name(), err)
	}
	sch.WithExamples(ex)

	walkRefs(&sch, func(ref *string) {
		refID := strings.ReplaceAll(*ref, "#/definitions/", "#/components/schemas/")
		refID = strings.TrimPrefix(refID, "#/components/schemas/")

		*ref = "#/components/schemas/" + refID
	})

	return sch, nil
}

func NewModel(def TypeDef) Model {
	return Model{
		Struct: jsonschema.Struct{
			DefName: def.Name,
		},
		Def: def,
	}
}

// =============================================================================

func walkRefs(schema *jsonschema.Schema, f func(*string)) {
	if schema == nil {
		return
	}

	apply := func(sch *jsonschema.Schema) {
		if sch.Ref != nil {
			f(sch.Ref)
		}
	}

	walkSchema(&jsonschema.SchemaOrBool{TypeObject: schema}, apply)
	for _, def := range schema.Definitions {
		walkSchema(&def, apply)
	}
}

func walkSchema(schemaOrBool *jsonschema.SchemaOrBool, f func(*jsonschema.Schema)) {
	if schemaOrBool == nil || schemaOrBool.TypeObject == nil {
		return
	}

	schema := schemaOrBool.TypeObject

	f(schema)

	walkSchema(schema.AdditionalItems, f)

	if schema.Items != nil {
		for _, item := range schema.Items.SchemaArray {
			walkSchema(&item, f)
		}
		walkSchema(schema.Items.SchemaOrBool, f)
	}

	walkSchema(schema.Contains, f)
	walkSchema(schema.AdditionalProperties, f)

	for _, prop := range schema.Properties {
		walkSchema(&prop, f)
	}

	for _, group := range [][]jsonschema.SchemaOrBool{schema.AllOf, schema.AnyOf, schema.OneOf} {
		for _, s := range group {
			walkSchema(&s, f)
		}
	}

	walkSchema(schema.Not, f)
}
