package openapi

import (
	"github.com/swaggest/jsonschema-go"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/model"
)

type Kind string

const (
	KindResource Kind = "resource"
	KindRelated  Kind = "related"
	KindAction   Kind = "action"
)

// Record is one documented operation.
type Record struct {
	Kind Kind
	Type hypermedia.TypeDef
	// Relation is set on KindRelated records.
	Relation model.RelationDescriptor
	// Action is set on KindAction records.
	Action string

	ID            string
	Method        string
	Path          string
	Description   string
	Summary       string
	SuccessStatus int
	Tags          []string
	Extensions    map[string]any
	// Responses are the success bodies, one per media type.
	Responses []Response
}

// Response is a named document schema served with a media type.
type Response struct {
	ContentType string
	Name        string
	Schema      jsonschema.Schema
}

// document exposes a response schema to the reflector under its definition name.
type document struct {
	jsonschema.Struct
	schema jsonschema.Schema
}

var _ jsonschema.Exposer = document{}

func newDocument(r Response) document {
	return document{
		Struct: jsonschema.Struct{DefName: r.Name},
		schema: r.Schema,
	}
}

func (d document) JSONSchema() (jsonschema.Schema, error) {
	return d.schema, nil
}
