// Package jsonmerge provides an insertion-ordered JSON object and helpers to
// merge JSON schemas and examples built from such objects.
package jsonmerge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Object is a JSON object that marshals its keys in insertion order.
type Object struct {
	keys   []string
	values map[string]any
}

func NewObject() *Object {
	return &Object{
		keys:   make([]string, 0),
		values: make(map[string]any),
	}
}

// Set stores value under key. A key that is already present keeps its position.
func (o *Object) Set(key string, value any) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return slices.Clone(o.keys)
}

func (o *Object) Len() int {
	return len(o.keys)
}

// Map converts the object, recursively, to plain maps and slices.
func (o *Object) Map() map[string]any {
	out := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		out[k] = Plain(o.values[k])
	}
	return out
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}

// ParseObject decodes a JSON object keeping the document order of its keys.
// Nested objects become *Object, arrays []any and numbers float64.
func ParseObject(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}
	obj, err := parseObject(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level object")
	}
	return obj, nil
}

func parseObject(dec *json.Decoder) (*Object, error) {
	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		obj.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("close object: %w", err)
	}
	return obj, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		return parseObject(dec)
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			v, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}

// Plain converts a value produced by ParseObject to plain maps and slices.
func Plain(v any) any {
	switch v := v.(type) {
	case *Object:
		return v.Map()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Plain(e)
		}
		return out
	default:
		return v
	}
}

// =============================================================================

type Merger interface {
	MergeSchemas(schemas ...[]byte) ([]byte, error)
	MergeExamples(examples ...[]byte) ([]byte, error)
}

type Options struct {
	SchemasMergeStrategy SchemaMergeStrategy
}

type SchemaMergeStrategy int

const (
	OverwriteDuplicates SchemaMergeStrategy = iota
	ErrorOnDuplicates
	KeepExisting
)

func New() Merger {
	return NewWithOptions(Options{
		SchemasMergeStrategy: OverwriteDuplicates,
	})
}

func NewWithOptions(opts Options) Merger {
	return &merger{opts: opts}
}

type merger struct {
	opts Options
}

// MergeSchemas merges the properties and required lists of object schemas,
// keeping properties in the order they were first seen.
func (m *merger) MergeSchemas(schemas ...[]byte) ([]byte, error) {
	if len(schemas) == 0 {
		return []byte("{}"), nil
	}

	result := NewObject()
	result.Set("type", "object")

	properties := NewObject()
	result.Set("properties", properties)

	required := make([]string, 0)

	for _, schema := range schemas {
		current, err := ParseObject(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema: %w", err)
		}

		if err := m.mergeSchemaProperties(properties, current); err != nil {
			return nil, err
		}

		mergeRequiredFields(&required, current)
	}

	if len(required) > 0 {
		slices.Sort(required)
		result.Set("required", required)
	}

	return json.MarshalIndent(result, "", "  ")
}

func (m *merger) MergeExamples(examples ...[]byte) ([]byte, error) {
	if len(examples) == 0 {
		return []byte("{}"), nil
	}

	result := NewObject()
	for _, example := range examples {
		current, err := ParseObject(example)
		if err != nil {
			return nil, fmt.Errorf("failed to parse example: %w", err)
		}

		for _, k := range current.keys {
			result.Set(k, current.values[k])
		}
	}

	return json.MarshalIndent(result, "", "  ")
}

func (m *merger) mergeSchemaProperties(properties *Object, schema *Object) error {
	raw, ok := schema.Get("properties")
	if !ok {
		return nil
	}
	props, ok := raw.(*Object)
	if !ok {
		return fmt.Errorf("properties must be an object, got %T", raw)
	}
	for _, k := range props.keys {
		if properties.Has(k) {
			switch m.opts.SchemasMergeStrategy {
			case ErrorOnDuplicates:
				return fmt.Errorf("duplicate property found: %s", k)
			case KeepExisting:
				continue
			}
		}
		properties.Set(k, props.values[k])
	}
	return nil
}

func mergeRequiredFields(required *[]string, schema *Object) {
	raw, ok := schema.Get("required")
	if !ok {
		return
	}
	req, ok := raw.([]any)
	if !ok {
		return
	}
	for _, r := range req {
		if str, ok := r.(string); ok && !slices.Contains(*required, str) {
			*required = append(*required, str)
		}
	}
}
