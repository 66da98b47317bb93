package openapi

import (
	"fmt"
	"net/http"

	"github.com/swaggest/jsonschema-go"
	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi31"
)

type ContextWrapper struct {
	openapi.OperationContext
	*openapi31.Operation
	reflector *Reflector
}

func (c ContextWrapper) addToReflector() error {
	return c.reflector.AddOperation(c.OperationContext)
}

// from populates the operation from a Record. errs are documented as the not found responses.
func (c *ContextWrapper) from(record Record, errs []Response) error {
	if len(record.Responses) == 0 {
		c.OperationContext.AddRespStructure(nil, openapi.WithHTTPStatus(record.SuccessStatus))
	}
	for _, rsp := range record.Responses {
		if err := c.addRespStructure(rsp, record.SuccessStatus); err != nil {
			return err
		}
	}
	for _, rsp := range errs {
		if err := c.addRespStructure(rsp, http.StatusNotFound); err != nil {
			return err
		}
	}

	params := []openapi31.ParameterOrReference{}
	forEachPathParam(record.Method, record.Path, func(param string) {
		params = append(params, makeRequiredPathParam(param))
	})
	if record.Method == http.MethodGet {
		params = append(params, makeOptionalQueryParam("embed", "string", "Comma separated relations to embed."))
	}
	if record.Kind == KindRelated {
		rels := c.reflector.pageRels
		params = append(params,
			makeOptionalQueryParam(rels.CursorParam, "string", "Cursor of the page to return."),
			makeOptionalQueryParam(rels.SizeParam, "integer", "Maximum number of members on the page."),
		)
	}
	c.WithParameters(params...)

	c.WithID(record.ID)
	c.WithTags(record.Tags...)
	for _, tag := range record.Tags {
		c.reflector.allTags[tag] = true
	}
	if record.Description != "" {
		c.SetDescription(record.Description)
	}
	if record.Summary != "" {
		c.SetSummary(record.Summary)
	}

	if record.Extensions != nil {
		c.Operation.WithMapOfAnything(record.Extensions)
	}

	return nil
}

// addRespStructure registers the response schema under its name, rejecting
// a name that is already used by a different schema.
func (c ContextWrapper) addRespStructure(rsp Response, status int) error {
	if err := c.reflector.addDefinition(rsp.Name, rsp.Schema); err != nil {
		return fmt.Errorf("failed to add definition for %s: %w", rsp.Name, err)
	}

	c.OperationContext.AddRespStructure(newDocument(rsp),
		openapi.WithHTTPStatus(status),
		openapi.WithContentType(rsp.ContentType),
	)

	return nil
}

func NewContextWrapper(ctx openapi.OperationContext, r *Reflector) *ContextWrapper {
	ctxWrapper := ContextWrapper{
		OperationContext: ctx,
		reflector:        r,
	}
	if opExp, ok := ctx.(openapi31.OperationExposer); ok {
		ctxWrapper.Operation = opExp.Operation()
	}

	return &ctxWrapper
}

/* -------------------------------------------------------------------------- */

func forEachPathParam(method string, path string, f func(string)) {
	_, _, params, _ := openapi.SanitizeMethodPath(method, path)
	for _, p := range params {
		f(p)
	}
}

func makeRequiredPathParam(param string) openapi31.ParameterOrReference {
	req := true
	s, err := jsonschema.String.ToSchemaOrBool().ToSimpleMap()
	if err != nil {
		return openapi31.ParameterOrReference{}
	}

	return openapi31.ParameterOrReference{
		Parameter: &openapi31.Parameter{
			Name:     param,
			In:       openapi31.ParameterInPath,
			Required: &req,
			Schema:   s,
		},
	}
}

func makeOptionalQueryParam(name string, t string, desc string) openapi31.ParameterOrReference {
	req := false
	var schema jsonschema.Schema
	var jt jsonschema.Type
	switch t {
	case "integer":
		jt.WithSimpleTypes(jsonschema.Integer)
	default:
		jt.WithSimpleTypes(jsonschema.String)
	}
	schema.WithType(jt)

	s, err := schema.ToSchemaOrBool().ToSimpleMap()
	if err != nil {
		return openapi31.ParameterOrReference{}
	}

	param := &openapi31.Parameter{
		Name:     name,
		In:       openapi31.ParameterInQuery,
		Required: &req,
		Schema:   s,
	}
	if desc != "" {
		param.WithDescription(desc)
	}
	return openapi31.ParameterOrReference{Parameter: param}
}
