package hypermedia

import (
	"encoding/json"

	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

// TypeDef describes a registered resource type.
type TypeDef struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Summary     string                     `json:"summary,omitempty"`
	Tags        []string                   `json:"tags,omitempty"`
	Schema      json.RawMessage            `json:"schema,omitempty"`
	Example     json.RawMessage            `json:"example,omitempty"`
	Relations   []model.RelationDescriptor `json:"relations,omitempty"`
	Actions     []link.Action              `json:"-"`
	Extensions  map[string]any             `json:"extensions,omitempty"`
	// Undocumented types are rendered but left out of generated documentation.
	Undocumented bool `json:"undocumented,omitempty"`
}

// Relation returns the descriptor of the named relation.
func (d TypeDef) Relation(name string) (model.RelationDescriptor, bool) {
	for _, r := range d.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return model.RelationDescriptor{}, false
}

// AttributeSchema returns the declared attribute schema, or one that accepts any object.
func (d TypeDef) AttributeSchema() []byte {
	if len(d.Schema) == 0 {
		return model.NilSchema()
	}
	return d.Schema
}

func (d TypeDef) AttributeExample() []byte {
	if len(d.Example) == 0 {
		return model.NilExample()
	}
	return d.Example
}

type TypeOption func(*TypeDef)

func WithDescription(desc string) TypeOption {
	return func(d *TypeDef) {
		d.Description = desc
	}
}

func WithSummary(summary string) TypeOption {
	return func(d *TypeDef) {
		d.Summary = summary
	}
}

func WithTags(tags ...string) TypeOption {
	return func(d *TypeDef) {
		nonEmptyTags := make([]string, 0)
		for _, tag := range tags {
			if tag != "" {
				nonEmptyTags = append(nonEmptyTags, tag)
			}
		}
		d.Tags = nonEmptyTags
	}
}

func WithExtension(val map[string]any) TypeOption {
	return func(d *TypeDef) {
		d.Extensions = val
	}
}

func (a *API) registerType(d TypeDef, opts ...TypeOption) {
	for _, opt := range opts {
		opt(&d)
	}
	a.registry[d.Name] = d
}
