package cli

import (
	"fmt"
	"os"

	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/config"
	"github.com/tailbits/hypermedia/model"
)

// newAPI builds an API for the configured types. A nil loader yields an API
// that can be documented but not rendered.
func (a *app) newAPI(loader hypermedia.Loader) (*hypermedia.API, error) {
	opts := []hypermedia.Option{
		hypermedia.WithLinkContext(a.cfg.LinkContext()),
		hypermedia.WithDefaultPageSize(a.cfg.Render.PageSize),
		hypermedia.WithLogger(a.log),
	}
	if loader != nil {
		opts = append(opts, hypermedia.WithLoader(loader))
	}

	api := hypermedia.NewAPI(opts...)
	if err := registerTypes(api, a.cfg.Types); err != nil {
		return nil, err
	}
	return api, nil
}

func registerTypes(api *hypermedia.API, types []config.TypeConfig) error {
	for _, t := range types {
		tb := hypermedia.Define(t.Name).
			WithDesc(t.Description).
			WithTags(t.Tags...).
			SkipIf(t.Hidden)

		if t.Schema != "" {
			schema, err := os.ReadFile(t.Schema)
			if err != nil {
				return fmt.Errorf("type %s: read schema: %w", t.Name, err)
			}
			tb.WithSchema(schema)
		}

		for _, r := range t.Relations {
			c, err := model.ParseCardinality(r.Cardinality)
			if err != nil {
				return fmt.Errorf("type %s: relation %s: %w", t.Name, r.Name, err)
			}
			if c == model.Many {
				tb.HasMany(r.Name, r.Target, r.Description)
			} else {
				tb.HasOne(r.Name, r.Target, r.Description)
			}
		}
		for _, act := range t.Actions {
			tb.WithAction(act.Name, act.Method, nil)
		}

		if err := tb.TryRegister(api); err != nil {
			return err
		}
	}
	return nil
}
