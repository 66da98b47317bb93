package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/daveshanley/vacuum/model"
	"github.com/daveshanley/vacuum/motor"
	"github.com/daveshanley/vacuum/rulesets"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/swaggest/jsonschema-go"
	"github.com/swaggest/openapi-go/openapi31"
	"github.com/tailbits/hypermedia/link"
)

type definitionsMap map[string]jsonschema.Schema

type Reflector struct {
	*openapi31.Reflector
	allDefs definitionsMap
	allTags map[string]bool
	// pageRels names the paging query parameters of related collections.
	pageRels link.PageRels
}

func newReflector(config openapiConfig, linkCtx link.Context) *Reflector {
	reflector := openapi31.NewReflector()
	reflector.Spec = &openapi31.Spec{Openapi: "3.1.0"}
	reflector.Spec.Info.
		WithTitle(config.title).
		WithVersion(config.version)
	if config.description != "" {
		reflector.Spec.Info.WithDescription(config.description)
	}
	if linkCtx.BaseURL != "" {
		reflector.Spec.WithServers(openapi31.Server{URL: linkCtx.BaseURL})
	}

	reflector.Reflector.DefaultOptions = append(reflector.Reflector.DefaultOptions, jsonschema.DefinitionsPrefix(componentsPrefix))

	return &Reflector{
		Reflector: reflector,
		allDefs:   make(definitionsMap),
		allTags:   make(map[string]bool),
		pageRels:  linkCtx.PageRels.WithDefaults(),
	}
}

func (r *Reflector) ingest(records []Record, errs []Response) error {
	for _, record := range records {
		ctx, err := r.newOperationContext(record.Method, record.Path)
		if err != nil {
			return fmt.Errorf("failed to create operation context: %w", err)
		}

		if err := ctx.from(record, errs); err != nil {
			return fmt.Errorf("failed to populate operation %s: %w", record.ID, err)
		}

		if err := ctx.addToReflector(); err != nil {
			return fmt.Errorf("failed to add operation %s: %w", record.ID, err)
		}
	}

	return nil
}

// validate lints the document with the recommended vacuum rules and fails on schema violations.
func (r *Reflector) validate() error {
	specBytes, err := r.marshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	recommendedRS := rulesets.BuildDefaultRuleSets().GenerateOpenAPIRecommendedRuleSet()

	lintingResults := motor.ApplyRulesToRuleSet(
		&motor.RuleSetExecution{
			RuleSet: recommendedRS,
			Spec:    specBytes,
		})

	resultSet := model.NewRuleResultSet(lintingResults.Results)
	resultSet.SortResultsByLineNumber()

	schemasResults := resultSet.GetRuleResultsForCategory("schemas")

	errors := make([]error, 0)
	for _, ruleResult := range schemasResults.RuleResults {
		for _, violation := range ruleResult.Results {
			errors = append(errors, fmt.Errorf(" - [%d:%d] %s", violation.StartNode.Line, violation.StartNode.Column, violation.Message))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	return nil
}

func (r *Reflector) marshalJSON() ([]byte, error) {
	return r.Reflector.Spec.MarshalJSON()
}

// collectDefinitions commits every collected definition to the components of the document.
func (r *Reflector) collectDefinitions() error {
	names := make([]string, 0, len(r.allDefs))
	for defName := range r.allDefs {
		names = append(names, defName)
	}
	sort.Strings(names)

	seen := make(map[string]string)
	for _, defName := range names {
		normalized := strings.ToLower(defName)
		if orig, exists := seen[normalized]; exists {
			return fmt.Errorf("conflicting definitions: %q and %q", orig, defName)
		}
		seen[normalized] = defName
	}

	components := r.Reflector.Spec.ComponentsEns()
	for _, defName := range names {
		def := r.allDefs[defName]
		def.Definitions = nil
		sm, err := def.ToSchemaOrBool().ToSimpleMap()
		if err != nil {
			return fmt.Errorf("definition %s: %w", defName, err)
		}
		components.WithSchemasItem(defName, sm)
	}

	return nil
}

func (r *Reflector) collectTags(tags []string) {
	r.Spec.Tags = make([]openapi31.Tag, len(tags))
	for i, tag := range tags {
		r.Spec.Tags[i] = openapi31.Tag{Name: tag}
	}
}

// addDefinition stores a named schema and the definitions nested in it. A
// name that is already taken must carry an identical schema.
func (r *Reflector) addDefinition(name string, schema jsonschema.Schema) error {
	if name == "" {
		return fmt.Errorf("definition name cannot be empty")
	}

	if existingDef, ok := r.allDefs[name]; ok {
		if diff, same := compareSchemas(existingDef, schema); !same {
			return fmt.Errorf("definition with name [%s] already exists but with a different schema:\n%s", name, diff)
		}
		if len(existingDef.Examples) > 0 && len(schema.Examples) == 0 {
			return nil
		}
	}
	r.allDefs[name] = schema

	for nestedName, def := range schema.Definitions {
		if def.TypeObject != nil {
			if err := r.addDefinition(nestedName, *def.TypeObject); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Reflector) addDefinitions(defs map[string]jsonschema.Schema) error {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.addDefinition(name, defs[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reflector) newOperationContext(method, path string) (*ContextWrapper, error) {
	oc, err := r.Reflector.NewOperationContext(method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation context: %w", err)
	}

	return NewContextWrapper(oc, r), nil
}

/* -------------------------------------------------------------------------- */

// compareSchemas ignores examples and nested definitions, which are compared under their own names.
func compareSchemas(a jsonschema.Schema, b jsonschema.Schema) (string, bool) {
	a.Examples, b.Examples = nil, nil
	a.Definitions, b.Definitions = nil, nil

	aa, _ := a.MarshalJSON()
	bb, _ := b.MarshalJSON()
	if bytes.Equal(aa, bb) {
		return "", true
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(pretty(aa)), string(pretty(bb)), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	return dmp.DiffPrettyText(diffs), false
}

func pretty(schema []byte) []byte {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, schema, "", "  "); err != nil {
		return schema
	}
	return prettyJSON.Bytes()
}
