package hypermedia

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

// TypeBuilder declares a resource type fluently. Nothing is registered until Register.
type TypeBuilder struct {
	name    string
	desc    string
	summary string
	tags    []string
	schema  []byte
	example []byte
	rels    []model.RelationDescriptor
	actions []link.Action
	keyVals map[string]any
	skipped bool
}

// Define starts the declaration of the resource type name.
func Define(name string) *TypeBuilder {
	return &TypeBuilder{
		name:    name,
		keyVals: make(map[string]any),
	}
}

func (tb *TypeBuilder) Name() string {
	return tb.name
}

// WithDesc sets the description of the type. This is used primarily for documentation purposes.
func (tb *TypeBuilder) WithDesc(d string) *TypeBuilder {
	tb.desc = d
	return tb
}

func (tb *TypeBuilder) WithSummary(s string) *TypeBuilder {
	tb.summary = s
	return tb
}

// WithTags sets the tags of the type. This is used primarily for documentation purposes.
func (tb *TypeBuilder) WithTags(tags ...string) *TypeBuilder {
	tb.tags = tags
	return tb
}

// WithSchema sets the JSON schema of the type's attributes.
func (tb *TypeBuilder) WithSchema(schema []byte) *TypeBuilder {
	tb.schema = schema
	return tb
}

func (tb *TypeBuilder) WithExample(example []byte) *TypeBuilder {
	tb.example = example
	return tb
}

// HasOne declares a to-one relation to targetType.
func (tb *TypeBuilder) HasOne(name, targetType string, desc ...string) *TypeBuilder {
	return tb.relation(name, targetType, model.One, desc)
}

// HasMany declares a to-many relation to targetType.
func (tb *TypeBuilder) HasMany(name, targetType string, desc ...string) *TypeBuilder {
	return tb.relation(name, targetType, model.Many, desc)
}

func (tb *TypeBuilder) relation(name, targetType string, c model.Cardinality, desc []string) *TypeBuilder {
	tb.rels = append(tb.rels, model.RelationDescriptor{
		Name:        name,
		TargetType:  targetType,
		Cardinality: c,
		Description: strings.Join(desc, " "),
	})
	return tb
}

// WithAction exposes a state transition. allowed may be nil when the action always applies.
func (tb *TypeBuilder) WithAction(name, method string, allowed func(model.Resource) bool) *TypeBuilder {
	tb.actions = append(tb.actions, link.Action{Name: name, Method: method, Allowed: allowed})
	return tb
}

// WithExtensions sets custom x- attributes for the type. This is used for adding OpenAPI extensions.
func (tb *TypeBuilder) WithExtensions(key string, val any) *TypeBuilder {
	if !strings.HasPrefix(key, "x-") {
		panic(fmt.Errorf("custom keys must start with 'x-', key '%s' does not start with 'x-'", key))
	}
	tb.keyVals[key] = val

	return tb
}

// SkipIf ensures that the type is not documented if the condition is true.
func (tb *TypeBuilder) SkipIf(skip bool) *TypeBuilder {
	tb.skipped = skip
	return tb
}

func (tb *TypeBuilder) validate() error {
	if tb.name == "" {
		return fmt.Errorf("type name is required")
	}
	if strings.Contains(tb.name, "/") {
		return fmt.Errorf("type name %q must not contain '/'", tb.name)
	}
	if len(tb.schema) > 0 && !json.Valid(tb.schema) {
		return fmt.Errorf("type %s: schema is not valid JSON", tb.name)
	}
	if len(tb.example) > 0 && !json.Valid(tb.example) {
		return fmt.Errorf("type %s: example is not valid JSON", tb.name)
	}

	seen := map[string]bool{model.SelfRel: true}
	for _, r := range tb.rels {
		switch {
		case r.Name == "":
			return fmt.Errorf("type %s: relation name is required", tb.name)
		case seen[r.Name]:
			return fmt.Errorf("type %s: relation %q is declared twice or is reserved", tb.name, r.Name)
		case r.TargetType == "":
			return fmt.Errorf("type %s: relation %q needs a target type", tb.name, r.Name)
		}
		seen[r.Name] = true
	}
	for _, a := range tb.actions {
		switch {
		case a.Name == "":
			return fmt.Errorf("type %s: action name is required", tb.name)
		case seen[a.Name]:
			return fmt.Errorf("type %s: action %q collides with a relation", tb.name, a.Name)
		case ActionStatus(a.Method) == 0:
			return fmt.Errorf("type %s: action %q has unsupported method %q", tb.name, a.Name, a.Method)
		}
		seen[a.Name] = true
	}
	return nil
}

var successCodes = map[string]int{
	http.MethodPost:   http.StatusCreated,
	http.MethodPut:    http.StatusOK,
	http.MethodPatch:  http.StatusOK,
	http.MethodDelete: http.StatusNoContent,
	http.MethodGet:    http.StatusOK,
}

// ActionStatus is the status an action with the given method answers with on success, or 0 for unsupported methods.
func ActionStatus(method string) int {
	return successCodes[method]
}

// Register validates the declaration and adds the type to api. Like route
// registration it panics on misuse, including a second declaration of the
// same type with a different schema.
func (tb *TypeBuilder) Register(api *API) {
	if err := tb.TryRegister(api); err != nil {
		panic(err)
	}
}

// TryRegister is Register for declarations read at runtime. It reports
// misuse as an error and leaves api untouched.
func (tb *TypeBuilder) TryRegister(api *API) error {
	if err := tb.validate(); err != nil {
		return err
	}

	if existing, ok := api.GetType(tb.name); ok {
		if !bytes.Equal(compact(existing.Schema), compact(tb.schema)) {
			return fmt.Errorf("type %s is already registered with a different schema:\n%s", tb.name, schemaDiff(existing.Schema, tb.schema))
		}
	}

	api.registerType(
		TypeDef{
			Name:         tb.name,
			Schema:       tb.schema,
			Example:      tb.example,
			Relations:    tb.rels,
			Actions:      tb.actions,
			Undocumented: tb.skipped,
		},
		WithDescription(tb.desc),
		WithSummary(tb.summary),
		WithTags(tb.tags...),
		WithExtension(tb.keyVals),
	)
	return nil
}

func compact(doc []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return doc
	}
	return buf.Bytes()
}

func schemaDiff(existing, next []byte) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(string(pretty(existing)), string(pretty(next)), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	return dmp.DiffPrettyText(diffs)
}

func pretty(schema []byte) []byte {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, schema, "", "  "); err != nil {
		return schema
	}
	return prettyJSON.Bytes()
}
