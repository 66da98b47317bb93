package model

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrBodyEmpty occurs when the document to validate was empty.
var ErrBodyEmpty = errors.New("body empty")

// Validator checks documents against a compiled JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaDoc []byte) (*Validator, error) {
	doc := gojsonschema.NewBytesLoader(schemaDoc)
	sch, err := gojsonschema.NewSchema(doc)
	if err != nil {
		return nil, fmt.Errorf("gojsonschema.NewSchema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Validate returns a ValidationError when body does not satisfy the schema.
func (v *Validator) Validate(body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("validate: %w %w", NewValidationError([]string{"body is empty"}), ErrBodyEmpty)
	}

	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("json schema validate: %w", err)
	}

	if !res.Valid() {
		return ToValidationError(res)
	}

	return nil
}

// Validate validates body against schemaDoc in one step.
func Validate(schemaDoc []byte, body []byte) error {
	v, err := NewValidator(schemaDoc)
	if err != nil {
		return err
	}
	return v.Validate(body)
}
