package sync

import (
	"fmt"
	"reflect"
)

type ValidationError struct {
	Breadcrumbs string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Breadcrumbs, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SchemaTypeError reports a Go kind that cannot hold the schema's type.
type SchemaTypeError struct {
	Expected    string
	Got         reflect.Kind
	Breadcrumbs string
}

func (e *SchemaTypeError) Error() string {
	return fmt.Sprintf("%s: got %s when schema expects %s", e.Breadcrumbs, e.Got, e.Expected)
}

// NullableFieldError reports a pointer or map field whose schema does not allow null.
type NullableFieldError struct {
	Message     string
	Breadcrumbs string
}

func (e *NullableFieldError) Error() string {
	return e.Message
}

type MissingPropertyError struct {
	Property    string
	Breadcrumbs string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("%s: schema is missing property %s", e.Breadcrumbs, e.Property)
}

type AdditionalPropertyError struct {
	Property    string
	Breadcrumbs string
}

func (e *AdditionalPropertyError) Error() string {
	return fmt.Sprintf("%s: schema has an additional property %s", e.Breadcrumbs, e.Property)
}
