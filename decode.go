package hypermedia

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/tailbits/hypermedia/model"
)

// Bind validates the attributes of res against its type's schema and
// unmarshals them into a T. Validation failures are model.ValidationError.
func Bind[T any](api *API, res model.Resource) (out T, err error) {
	// If T is a pointer, we need to create a new instance,
	// or else "out" will be a nil pointer.
	if t := reflect.TypeOf(out); t != nil && t.Kind() == reflect.Ptr {
		var ok bool
		if out, ok = reflect.New(t.Elem()).Interface().(T); !ok {
			return out, fmt.Errorf("type assertion failed for value of type %T", out)
		}
		return out, api.Bind(res, out)
	}

	return out, api.Bind(res, &out)
}

// Bind is the untyped form of Bind. v must be a pointer.
func (a *API) Bind(res model.Resource, v any) error {
	def, ok := a.GetType(res.Type)
	if !ok {
		return &model.UnknownTypeError{Type: res.Type}
	}

	body, err := json.Marshal(attributesOf(res))
	if err != nil {
		return fmt.Errorf("unable to marshal the attributes of %s: %w", res.Identifier(), err)
	}

	schema, err := a.DereferenceSchema(def.AttributeSchema())
	if err != nil {
		return fmt.Errorf("dereferenceSchema type[%s]: %w", def.Name, err)
	}

	if err := model.Validate(schema, body); err != nil {
		return fmt.Errorf("model.Validate: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unable to unmarshal the data: %w", err)
	}

	return nil
}

func attributesOf(res model.Resource) map[string]any {
	if res.Attributes == nil {
		return map[string]any{}
	}
	return res.Attributes
}
