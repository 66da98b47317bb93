package codec

import (
	"errors"
	"sync"

	"github.com/tailbits/hypermedia/model"
)

// HALSchema is the structural schema of a HAL resource document. Embedded
// documents are checked recursively.
var HALSchema = []byte(`{
	"type": "object",
	"required": ["_links"],
	"properties": {
		"_links": {
			"type": "object",
			"required": ["self"],
			"properties": {
				"self": {"$ref": "#/definitions/link"}
			},
			"additionalProperties": {
				"oneOf": [
					{"$ref": "#/definitions/link"},
					{"type": "array", "items": {"$ref": "#/definitions/link"}}
				]
			}
		},
		"_embedded": {
			"type": "object",
			"additionalProperties": {
				"oneOf": [
					{"type": "null"},
					{"$ref": "#"},
					{"type": "array", "items": {"$ref": "#"}}
				]
			}
		}
	},
	"definitions": {
		"link": {
			"type": "object",
			"required": ["href"],
			"properties": {
				"href": {"type": "string"},
				"method": {"type": "string"},
				"type": {"type": "string"},
				"title": {"type": "string"},
				"templated": {"type": "boolean"}
			}
		}
	}
}`)

const jsonAPIDefinitions = `
	"definitions": {
		"identifier": {
			"type": "object",
			"required": ["type", "id"],
			"properties": {
				"type": {"type": "string", "minLength": 1},
				"id": {"type": "string", "minLength": 1}
			}
		},
		"link": {
			"oneOf": [
				{"type": "string"},
				{"type": "object", "required": ["href"], "properties": {"href": {"type": "string"}}}
			]
		},
		"links": {
			"type": "object",
			"additionalProperties": {"$ref": "#/definitions/link"}
		},
		"relationship": {
			"type": "object",
			"properties": {
				"data": {
					"oneOf": [
						{"type": "null"},
						{"$ref": "#/definitions/identifier"},
						{"type": "array", "items": {"$ref": "#/definitions/identifier"}}
					]
				},
				"links": {"$ref": "#/definitions/links"}
			}
		},
		"resource": {
			"type": "object",
			"required": ["type", "id"],
			"properties": {
				"type": {"type": "string", "minLength": 1},
				"id": {"type": "string", "minLength": 1},
				"attributes": {"type": "object"},
				"relationships": {
					"type": "object",
					"additionalProperties": {"$ref": "#/definitions/relationship"}
				},
				"links": {"$ref": "#/definitions/links"}
			}
		}
	}`

// JSONAPISchema is the structural schema of a JSON:API single-resource document.
var JSONAPISchema = []byte(`{
	"type": "object",
	"required": ["data"],
	"properties": {
		"data": {"$ref": "#/definitions/resource"},
		"included": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
		"links": {"$ref": "#/definitions/links"}
	},` + jsonAPIDefinitions + `
}`)

// JSONAPICollectionSchema is the structural schema of a JSON:API collection document.
var JSONAPICollectionSchema = []byte(`{
	"type": "object",
	"required": ["data"],
	"properties": {
		"data": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
		"included": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
		"links": {"$ref": "#/definitions/links"}
	},` + jsonAPIDefinitions + `
}`)

var (
	halValidator               = sync.OnceValues(func() (*model.Validator, error) { return model.NewValidator(HALSchema) })
	jsonAPIValidator           = sync.OnceValues(func() (*model.Validator, error) { return model.NewValidator(JSONAPISchema) })
	jsonAPICollectionValidator = sync.OnceValues(func() (*model.Validator, error) { return model.NewValidator(JSONAPICollectionSchema) })
)

// checkEnvelope validates body and converts failures into a MalformedDocumentError.
func checkEnvelope(format string, validator func() (*model.Validator, error), body []byte) error {
	v, err := validator()
	if err != nil {
		return err
	}
	if err := v.Validate(body); err != nil {
		reason := "document structure is invalid"
		var verr model.ValidationError
		switch {
		case errors.Is(err, model.ErrBodyEmpty):
			reason = "body is empty"
		case errors.As(err, &verr) && len(verr.Errors) > 0:
			reason = verr.Errors[0].Message
		}
		return &model.MalformedDocumentError{Format: format, Reason: reason, Err: err}
	}
	return nil
}
