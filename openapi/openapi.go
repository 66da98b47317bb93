// Package openapi documents the resource types registered on a hypermedia.API
// as an OpenAPI 3.1 specification.
package openapi

import (
	"fmt"
	"net/http"

	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/internal/casing"
	"github.com/tailbits/hypermedia/model"
)

type openapiConfig struct {
	validate    bool
	filterFn    func(Record) bool
	tagsFn      func(hypermedia.TypeDef) []string
	allTags     []string
	transformFn func(*Record)
	title       string
	version     string
	description string
}

type Option func(*openapiConfig)

// Validate toggles linting of the generated document. It is on by default.
func Validate(enabled bool) Option {
	return func(c *openapiConfig) {
		c.validate = enabled
	}
}

func Filter(fn func(Record) bool) Option {
	return func(c *openapiConfig) {
		c.filterFn = fn
	}
}

// Tags adds tags computed per type, and declares all so unused tags are still listed.
func Tags(fn func(hypermedia.TypeDef) []string, all []string) Option {
	return func(c *openapiConfig) {
		c.tagsFn = fn
		c.allTags = all
	}
}

func Transform(fn func(*Record)) Option {
	return func(c *openapiConfig) {
		c.transformFn = fn
	}
}

func WithInfo(title, version, description string) Option {
	return func(c *openapiConfig) {
		c.title = title
		c.version = version
		c.description = description
	}
}

type Generator struct {
	*Reflector
	api     *hypermedia.API
	config  openapiConfig
	records []Record
}

func NewGenerator(api *hypermedia.API, opts ...Option) (*Generator, error) {
	config := openapiConfig{
		validate:    true,
		filterFn:    func(Record) bool { return true },
		tagsFn:      func(hypermedia.TypeDef) []string { return []string{} },
		allTags:     []string{},
		transformFn: func(*Record) {},
		title:       "Hypermedia API",
		version:     "1.0.0",
	}
	for _, opt := range opts {
		opt(&config)
	}

	g := &Generator{
		Reflector: newReflector(config, api.LinkContext()),
		api:       api,
		config:    config,
	}

	docs := newDocuments(api)
	for _, def := range api.Types() {
		if def.Undocumented {
			continue
		}
		recs, err := g.toRecords(def, docs)
		if err != nil {
			return nil, err
		}
		for _, record := range recs {
			config.transformFn(&record)
			if config.filterFn(record) {
				g.records = append(g.records, record)
			}
		}
	}

	return g, nil
}

// Records returns the operations that will be documented.
func (g *Generator) Records() []Record {
	return g.records
}

func (g *Generator) toRecords(def hypermedia.TypeDef, docs *documents) ([]Record, error) {
	tags := append(g.config.tagsFn(def), def.Tags...)
	if len(tags) == 0 {
		tags = []string{casing.KebabToTitleCase(casing.ToKebabCase(def.Name))}
	}
	self := "/" + def.Name + "/{id}"

	resource, err := docs.resource(def)
	if err != nil {
		return nil, err
	}
	records := []Record{{
		Kind:          KindResource,
		Type:          def,
		ID:            "get_" + casing.ToSnakeCase(def.Name),
		Method:        http.MethodGet,
		Path:          self,
		Description:   def.Description,
		Summary:       def.Summary,
		SuccessStatus: http.StatusOK,
		Tags:          tags,
		Extensions:    def.Extensions,
		Responses:     resource,
	}}

	for _, rel := range def.Relations {
		if rel.Cardinality != model.Many {
			continue
		}
		page, err := docs.page(def, rel)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Kind:          KindRelated,
			Type:          def,
			Relation:      rel,
			ID:            fmt.Sprintf("list_%s_%s", casing.ToSnakeCase(def.Name), casing.ToSnakeCase(rel.Name)),
			Method:        http.MethodGet,
			Path:          self + "/" + rel.Name,
			Description:   rel.Description,
			SuccessStatus: http.StatusOK,
			Tags:          tags,
			Responses:     page,
		})
	}

	for _, action := range def.Actions {
		status := hypermedia.ActionStatus(action.Method)
		var responses []Response
		if status != http.StatusNoContent {
			responses = resource
		}
		records = append(records, Record{
			Kind:          KindAction,
			Type:          def,
			Action:        action.Name,
			ID:            fmt.Sprintf("%s_%s", casing.ToSnakeCase(action.Name), casing.ToSnakeCase(def.Name)),
			Method:        action.Method,
			Path:          self + "/" + action.Name,
			SuccessStatus: status,
			Tags:          tags,
			Responses:     responses,
		})
	}

	return records, nil
}
