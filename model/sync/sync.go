// Package sync checks that the Go types resources are bound to agree with the
// attribute schemas of their resource types.
package sync

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/swaggest/jsonschema-go"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/model"
)

// ShouldSkip lets a field type opt out of the check.
type ShouldSkip interface {
	SkipSchemaValidation() bool
}

type Validator struct {
	Sch   *jsonschema.Schema
	Value any
	Name  string
}

// New builds a Validator comparing sample, a value of the Go type used with
// hypermedia.Bind, against the attribute schema of typeName.
func New(api *hypermedia.API, typeName string, sample any) (*Validator, error) {
	def, ok := api.GetType(typeName)
	if !ok {
		return nil, &model.UnknownTypeError{Type: typeName}
	}

	sch, err := api.DereferenceSchema(def.AttributeSchema())
	if err != nil {
		return nil, fmt.Errorf("error dereferencing schema for %s: %w", typeName, err)
	}

	return newValidator(typeName, sample, sch)
}

func newValidator(name string, sample any, sch []byte) (*Validator, error) {
	parsed := jsonschema.Schema{}
	if err := parsed.UnmarshalJSON(sch); err != nil {
		return nil, err
	}
	return &Validator{Sch: &parsed, Value: sample, Name: name}, nil
}

// IsSynced returns the first disagreement between the Go type and the schema.
func (v *Validator) IsSynced() error {
	return v.traverse(v.Sch, reflect.ValueOf(v.Value), false, v.Name)
}

// serverDefined reports fields we expect on the struct but not among the
// attributes: identity travels outside the attribute object.
func (v *Validator) serverDefined(fieldName string) bool {
	return fieldName == "id" || fieldName == "type"
}

var (
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	timeType       = reflect.TypeOf(time.Time{})
	shouldSkipType = reflect.TypeOf((*ShouldSkip)(nil)).Elem()
)

func isByteArray(val reflect.Value) bool {
	return (val.Kind() == reflect.Slice || val.Kind() == reflect.Array) && val.Type().Elem().Kind() == reflect.Uint8
}

func isInteger(val reflect.Value) bool {
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isNumber(val reflect.Value) bool {
	return isInteger(val) || val.Kind() == reflect.Float32 || val.Kind() == reflect.Float64
}

func isStrict(sch *jsonschema.Schema) bool {
	return sch.AdditionalProperties != nil && sch.AdditionalProperties.TypeBoolean != nil && !*sch.AdditionalProperties.TypeBoolean
}

func skipped(val reflect.Value) bool {
	if !val.IsValid() {
		return false
	}
	receiver := val
	if !val.Type().Implements(shouldSkipType) {
		if !val.CanAddr() || !val.Addr().Type().Implements(shouldSkipType) {
			return false
		}
		receiver = val.Addr()
	}
	s, ok := receiver.Interface().(ShouldSkip)
	return ok && s.SkipSchemaValidation()
}

// schemaType returns the single non-null type of sch; ["null", T] is nullable T.
func schemaType(sch *jsonschema.Schema) (t string, nullable bool, err error) {
	if sch.Type == nil {
		return "", false, fmt.Errorf("schema is missing a type")
	}
	if sch.Type.SimpleTypes != nil {
		return string(*sch.Type.SimpleTypes), false, nil
	}

	types := []string{}
	for _, t := range sch.Type.SliceOfSimpleTypeValues {
		if t == jsonschema.Null {
			nullable = true
		} else {
			types = append(types, string(t))
		}
	}
	if len(types) != 1 {
		return "", false, fmt.Errorf("exactly one non-null type is supported, got %v", types)
	}
	return types[0], nullable, nil
}

// deref follows a local reference, or a oneOf of null and a reference.
func (v *Validator) deref(sch *jsonschema.Schema) (*jsonschema.Schema, bool, error) {
	if sch.Ref != nil {
		const defPrefix = "#/definitions/"
		if !strings.HasPrefix(*sch.Ref, defPrefix) {
			return nil, false, fmt.Errorf("references must be prefixed with %s", defPrefix)
		}
		ref, ok := v.Sch.Definitions[strings.TrimPrefix(*sch.Ref, defPrefix)]
		if !ok || ref.TypeObject == nil {
			return nil, false, fmt.Errorf("could not find reference %s", *sch.Ref)
		}
		return ref.TypeObject, false, nil
	}

	nullable := false
	inner := sch
	for _, s := range sch.OneOf {
		switch o := s.TypeObject; {
		case o == nil:
		case o.Type != nil && o.Type.SimpleTypes != nil && *o.Type.SimpleTypes == jsonschema.Null:
			nullable = true
		case o.Ref != nil:
			var (
				refNullable bool
				err         error
			)
			if inner, refNullable, err = v.deref(o); err != nil {
				return nil, false, err
			}
			nullable = nullable || refNullable
		}
	}
	return inner, nullable, nil
}

func (v *Validator) traverse(sch *jsonschema.Schema, val reflect.Value, omitEmpty bool, breadcrumbs string) error {
	if skipped(val) {
		return nil
	}

	if sch == nil {
		if val.Kind() == reflect.Interface {
			return fmt.Errorf("%s: a non-interface value (%s) should have a definite schema", breadcrumbs, val.Kind())
		}
		return nil
	}

	sch, refNullable, err := v.deref(sch)
	if err != nil {
		return &ValidationError{Breadcrumbs: breadcrumbs, Err: err}
	}

	t, typeNullable, err := schemaType(sch)
	if err != nil {
		return &ValidationError{Breadcrumbs: breadcrumbs, Err: err}
	}
	nullable := refNullable || typeNullable
	root := breadcrumbs == v.Name

	if val.Kind() == reflect.Ptr {
		if !root && !nullable && !omitEmpty {
			return &NullableFieldError{Message: fmt.Sprintf("%s: must be nullable", breadcrumbs), Breadcrumbs: breadcrumbs}
		}
		if val.IsNil() {
			val = reflect.New(val.Type().Elem()).Elem()
		} else {
			val = val.Elem()
		}
	}

	if val.Kind() == reflect.Map && !root && !nullable && !omitEmpty {
		return &NullableFieldError{Message: fmt.Sprintf("%s: must be nullable", breadcrumbs), Breadcrumbs: breadcrumbs}
	}

	// raw JSON and interfaces leave the structure to the schema
	if (isByteArray(val) && val.Type() == rawMessageType) || val.Kind() == reflect.Interface {
		return nil
	}

	switch t {
	case "boolean":
		if val.Kind() != reflect.Bool {
			return &SchemaTypeError{Expected: "boolean", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
	case "integer":
		if !isInteger(val) {
			return &SchemaTypeError{Expected: "integer", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
	case "number":
		if !isNumber(val) {
			return &SchemaTypeError{Expected: "number", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
	case "string":
		if val.Kind() != reflect.String && !isByteArray(val) && val.Type() != timeType {
			return &SchemaTypeError{Expected: "string", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
	case "object":
		switch val.Kind() {
		case reflect.Struct:
			return v.checkStruct(sch, val, breadcrumbs)
		case reflect.Map:
			return v.checkMap(sch, val, breadcrumbs)
		default:
			return &SchemaTypeError{Expected: "map or struct", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
	case "array":
		if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
			return &SchemaTypeError{Expected: "array or slice", Got: val.Kind(), Breadcrumbs: breadcrumbs}
		}
		elem := reflect.New(val.Type().Elem()).Elem()
		groups := []struct {
			name    string
			schemas []jsonschema.SchemaOrBool
		}{{"allOf", sch.AllOf}, {"oneOf", sch.OneOf}, {"anyOf", sch.AnyOf}}
		for _, g := range groups {
			for i, s := range g.schemas {
				if err := v.traverse(s.TypeObject, elem, false, breadcrumbs+"."+strconv.Itoa(i)); err != nil {
					return fmt.Errorf("%s: %s failed: %w", breadcrumbs, g.name, err)
				}
			}
		}
		if sch.Items != nil && sch.Items.SchemaOrBool != nil {
			return v.traverse(sch.Items.SchemaOrBool.TypeObject, elem, false, breadcrumbs+".0")
		}
	default:
		return &ValidationError{Breadcrumbs: breadcrumbs, Err: fmt.Errorf("unknown type %s", t)}
	}
	return nil
}

func (v *Validator) checkStruct(sch *jsonschema.Schema, val reflect.Value, breadcrumbs string) error {
	if sch.AdditionalProperties != nil && sch.AdditionalProperties.TypeBoolean != nil && *sch.AdditionalProperties.TypeBoolean {
		return &ValidationError{Breadcrumbs: breadcrumbs, Err: fmt.Errorf("struct schemas should not allow additional properties")}
	}

	fields := make([]string, 0, val.NumField())
	for i := range val.NumField() {
		name, opts, ok := jsonName(val.Type().Field(i))
		if !ok {
			continue
		}
		fields = append(fields, name)

		prop, ok := sch.Properties[name]
		if !ok {
			if v.serverDefined(name) {
				continue
			}
			return &MissingPropertyError{Property: name, Breadcrumbs: breadcrumbs}
		}
		if prop.TypeObject == nil {
			continue
		}
		if err := v.traverse(prop.TypeObject, val.Field(i), opts.Contains("omitempty"), breadcrumbs+"."+name); err != nil {
			return err
		}
	}

	for _, k := range sortedKeys(sch.Properties) {
		if !slices.Contains(fields, k) {
			return &AdditionalPropertyError{Property: k, Breadcrumbs: breadcrumbs}
		}
	}
	return nil
}

func (v *Validator) checkMap(sch *jsonschema.Schema, val reflect.Value, breadcrumbs string) error {
	if isStrict(sch) {
		return &ValidationError{Breadcrumbs: breadcrumbs, Err: fmt.Errorf("schema strictly enumerates all valid keys (e.g. %s); the appropriate data type for unmarshalling would be a struct, not a map", sortedKeys(sch.Properties))}
	}

	elem := reflect.New(val.Type().Elem()).Elem()
	if sch.AdditionalProperties != nil && sch.AdditionalProperties.TypeObject != nil {
		if err := v.traverse(sch.AdditionalProperties.TypeObject, elem, false, breadcrumbs+"[key]"); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(sch.Properties) {
		if err := v.traverse(sch.Properties[k].TypeObject, elem, false, breadcrumbs+"[key]"); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
