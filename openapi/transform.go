package openapi

import (
	"fmt"
	"sort"
)

// Schema generates the OpenAPI document, linted unless validation is disabled.
func (g *Generator) Schema() ([]byte, error) {
	if err := g.collectTypeDefinitions(); err != nil {
		return nil, fmt.Errorf("failed to collect type definitions: %w", err)
	}

	errs, err := errorResponses()
	if err != nil {
		return nil, err
	}
	if err := g.ingest(g.records, errs); err != nil {
		return nil, fmt.Errorf("failed to ingest records: %w", err)
	}

	collectedTags := []string{}
	for tag := range g.allTags {
		collectedTags = append(collectedTags, tag)
	}
	for _, inferredTag := range g.config.allTags {
		if _, ok := g.allTags[inferredTag]; !ok {
			collectedTags = append(collectedTags, inferredTag)
		}
	}

	sort.Strings(collectedTags)
	g.collectTags(collectedTags)
	if err := g.collectDefinitions(); err != nil {
		return nil, fmt.Errorf("failed to collect definitions: %w", err)
	}

	if g.config.validate {
		if err := g.validate(); err != nil {
			return nil, fmt.Errorf("failed to validate the generated spec: %w", err)
		}
	}

	return g.marshalJSON()
}

// collectTypeDefinitions adds the schemas of every documented type, so
// references between types resolve even when operations are filtered out.
func (g *Generator) collectTypeDefinitions() error {
	shared := make(definitionsMap, len(sharedDefinitions))
	for name, v := range sharedDefinitions {
		sch, err := toSchema(v)
		if err != nil {
			return fmt.Errorf("definition %s: %w", name, err)
		}
		shared[name] = sch
	}
	if err := g.addDefinitions(shared); err != nil {
		return err
	}

	docs := newDocuments(g.api)
	for _, def := range g.api.Types() {
		if def.Undocumented {
			continue
		}
		defs, err := docs.definitions(def)
		if err != nil {
			return err
		}
		if err := g.addDefinitions(defs); err != nil {
			return err
		}
	}
	return nil
}
