package openapi

import (
	"encoding/json"
	"fmt"

	"github.com/swaggest/jsonschema-go"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/internal/casing"
	"github.com/tailbits/hypermedia/jsonmerge"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

const componentsPrefix = "#/components/schemas/"

const (
	linkDef       = "Link"
	identifierDef = "ResourceIdentifier"
	problemDef    = "Problem"
	errorsDef     = "Errors"
)

func ref(name string) map[string]any {
	return map[string]any{"$ref": componentsPrefix + name}
}

func halDef(typ string) string      { return casing.ToPascalCase(typ) + "HAL" }
func resourceDef(typ string) string { return casing.ToPascalCase(typ) + "Resource" }

var sharedDefinitions = map[string]any{
	linkDef: map[string]any{
		"type":     "object",
		"required": []string{"href"},
		"properties": map[string]any{
			"href":      map[string]any{"type": "string"},
			"method":    map[string]any{"type": "string"},
			"title":     map[string]any{"type": "string"},
			"templated": map[string]any{"type": "boolean"},
		},
	},
	identifierDef: map[string]any{
		"type":     "object",
		"required": []string{"type", "id"},
		"properties": map[string]any{
			"type": map[string]any{"type": "string"},
			"id":   map[string]any{"type": "string"},
		},
	},
	problemDef: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":  map[string]any{"type": "string"},
			"status": map[string]any{"type": "integer"},
			"detail": map[string]any{"type": "string"},
			"errors": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		},
	},
	errorsDef: map[string]any{
		"type":     "object",
		"required": []string{"errors"},
		"properties": map[string]any{
			"errors": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{"type": "string"},
						"title":  map[string]any{"type": "string"},
						"detail": map[string]any{"type": "string"},
						"source": map[string]any{"type": "object"},
					},
				},
			},
		},
	},
}

// documents builds the HAL and JSON:API envelopes of registered types.
type documents struct {
	api      *hypermedia.API
	merger   jsonmerge.Merger
	pageRels link.PageRels
}

func newDocuments(api *hypermedia.API) *documents {
	return &documents{
		api:      api,
		merger:   jsonmerge.New(),
		pageRels: api.LinkContext().PageRels.WithDefaults(),
	}
}

func (d *documents) documented(typ string) bool {
	def, ok := d.api.GetType(typ)
	return ok && !def.Undocumented
}

func (d *documents) halTarget(typ string) map[string]any {
	if d.documented(typ) {
		return ref(halDef(typ))
	}
	return map[string]any{"type": "object"}
}

func (d *documents) resourceTarget(typ string) map[string]any {
	if d.documented(typ) {
		return ref(resourceDef(typ))
	}
	return ref(identifierDef)
}

// attributes returns the attribute schema of def with references to other
// types inlined as definitions and pointed at components.
func (d *documents) attributes(def hypermedia.TypeDef) (jsonschema.Schema, error) {
	deref, err := d.api.DereferenceSchema(def.AttributeSchema())
	if err != nil {
		return jsonschema.Schema{}, fmt.Errorf("type %s: %w", def.Name, err)
	}
	def.Schema = deref
	return hypermedia.NewModel(def).JSONSchema()
}

// definitions returns every named schema describing def.
func (d *documents) definitions(def hypermedia.TypeDef) (map[string]jsonschema.Schema, error) {
	attrs, err := d.attributes(def)
	if err != nil {
		return nil, err
	}
	hal, err := d.hal(def, attrs)
	if err != nil {
		return nil, err
	}
	res, err := toSchema(d.resourceObject(def))
	if err != nil {
		return nil, err
	}
	return map[string]jsonschema.Schema{
		def.Name:              attrs,
		halDef(def.Name):      hal,
		resourceDef(def.Name): res,
	}, nil
}

// hal merges the attribute properties with the _links and _embedded controls.
func (d *documents) hal(def hypermedia.TypeDef, attrs jsonschema.Schema) (jsonschema.Schema, error) {
	links := map[string]any{model.SelfRel: ref(linkDef)}
	embedded := map[string]any{}
	for _, rel := range def.Relations {
		links[rel.Name] = ref(linkDef)
		if rel.Cardinality == model.Many {
			embedded[rel.Name] = map[string]any{"type": "array", "items": d.halTarget(rel.TargetType)}
		} else {
			embedded[rel.Name] = map[string]any{"oneOf": []any{map[string]any{"type": "null"}, d.halTarget(rel.TargetType)}}
		}
	}
	for _, a := range def.Actions {
		links[a.Name] = ref(linkDef)
	}

	controls, err := json.Marshal(map[string]any{
		"type":     "object",
		"required": []string{"_links"},
		"properties": map[string]any{
			"_links":    map[string]any{"type": "object", "required": []string{model.SelfRel}, "properties": links},
			"_embedded": map[string]any{"type": "object", "properties": embedded},
		},
	})
	if err != nil {
		return jsonschema.Schema{}, err
	}

	raw, err := attrs.MarshalJSON()
	if err != nil {
		return jsonschema.Schema{}, err
	}
	merged, err := d.merger.MergeSchemas(raw, controls)
	if err != nil {
		return jsonschema.Schema{}, fmt.Errorf("type %s: %w", def.Name, err)
	}
	return toSchema(merged)
}

func (d *documents) resourceObject(def hypermedia.TypeDef) map[string]any {
	rels := map[string]any{}
	for _, rel := range def.Relations {
		data := map[string]any{"oneOf": []any{map[string]any{"type": "null"}, ref(identifierDef)}}
		if rel.Cardinality == model.Many {
			data = map[string]any{"type": "array", "items": ref(identifierDef)}
		}
		rels[rel.Name] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data":  data,
				"links": map[string]any{"type": "object"},
			},
		}
	}

	return map[string]any{
		"type":     "object",
		"required": []string{"type", "id"},
		"properties": map[string]any{
			"type":          map[string]any{"type": "string", "const": def.Name},
			"id":            map[string]any{"type": "string"},
			"attributes":    ref(def.Name),
			"relationships": map[string]any{"type": "object", "properties": rels},
			"links":         map[string]any{"type": "object"},
		},
	}
}

// resource returns the documents of a single resource of def.
func (d *documents) resource(def hypermedia.TypeDef) ([]Response, error) {
	attrs, err := d.attributes(def)
	if err != nil {
		return nil, err
	}
	hal, err := d.hal(def, attrs)
	if err != nil {
		return nil, err
	}
	jsonAPI, err := toSchema(map[string]any{
		"type":     "object",
		"required": []string{"data"},
		"properties": map[string]any{
			"data":     ref(resourceDef(def.Name)),
			"included": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		return nil, err
	}

	return []Response{
		{ContentType: codec.HALMediaType, Name: halDef(def.Name), Schema: hal},
		{ContentType: codec.JSONAPIMediaType, Name: casing.ToPascalCase(def.Name) + "Document", Schema: jsonAPI},
	}, nil
}

// page returns the documents of one page of a to-many relation of def.
func (d *documents) page(def hypermedia.TypeDef, rel model.RelationDescriptor) ([]Response, error) {
	links := map[string]any{model.SelfRel: ref(linkDef)}
	for _, r := range []string{d.pageRels.First, d.pageRels.Prev, d.pageRels.Next, d.pageRels.Last} {
		links[r] = ref(linkDef)
	}

	hal, err := toSchema(map[string]any{
		"type":     "object",
		"required": []string{"_links"},
		"properties": map[string]any{
			"_links": map[string]any{"type": "object", "required": []string{model.SelfRel, d.pageRels.First}, "properties": links},
			"_embedded": map[string]any{
				"type":       "object",
				"properties": map[string]any{rel.Name: map[string]any{"type": "array", "items": d.halTarget(rel.TargetType)}},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	jsonAPI, err := toSchema(map[string]any{
		"type":     "object",
		"required": []string{"data"},
		"properties": map[string]any{
			"data":     map[string]any{"type": "array", "items": d.resourceTarget(rel.TargetType)},
			"links":    map[string]any{"type": "object"},
			"included": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		return nil, err
	}

	name := casing.ToPascalCase(def.Name) + casing.ToPascalCase(rel.Name)
	return []Response{
		{ContentType: codec.HALMediaType, Name: name + "HALPage", Schema: hal},
		{ContentType: codec.JSONAPIMediaType, Name: name + "Page", Schema: jsonAPI},
	}, nil
}

// errorResponses are served by every operation when the resource is missing.
func errorResponses() ([]Response, error) {
	problem, err := toSchema(sharedDefinitions[problemDef])
	if err != nil {
		return nil, err
	}
	errs, err := toSchema(sharedDefinitions[errorsDef])
	if err != nil {
		return nil, err
	}
	return []Response{
		{ContentType: hypermedia.ProblemMediaType, Name: problemDef, Schema: problem},
		{ContentType: codec.JSONAPIMediaType, Name: errorsDef, Schema: errs},
	}, nil
}

func toSchema(v any) (jsonschema.Schema, error) {
	raw, ok := v.([]byte)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return jsonschema.Schema{}, err
		}
	}

	var sch jsonschema.Schema
	if err := json.Unmarshal(raw, &sch); err != nil {
		return jsonschema.Schema{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return sch, nil
}
