// Package hypermedia registers resource types and renders them as HAL or
// JSON:API documents with computed links.
package hypermedia

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

// ErrNotFound is returned by loaders when the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Loader fetches resources from wherever the application keeps them.
type Loader interface {
	LoadResource(ctx context.Context, typ, id string) (model.Resource, error)
	LoadRelated(ctx context.Context, typ, id, relation string) ([]model.Resource, error)
}

// PageLoader is implemented by loaders that can page through a to-many relation.
// The returned cursor is empty on the last page.
type PageLoader interface {
	LoadRelatedPage(ctx context.Context, typ, id, relation, cursor string, size int) ([]model.Resource, string, error)
}

type API struct {
	registry Registry
	loader   Loader
	linkCtx  link.Context
	pageSize int
	log      *slog.Logger
}

type Option func(*API)

func WithLoader(l Loader) Option {
	return func(a *API) {
		a.loader = l
	}
}

// WithLinkContext sets the defaults every render starts from: base URL,
// embedded and link-only relations, pagination names.
func WithLinkContext(ctx link.Context) Option {
	return func(a *API) {
		a.linkCtx = ctx
	}
}

// WithDefaultPageSize sets the page size of related collections. Sizes
// below one are ignored.
func WithDefaultPageSize(size int) Option {
	return func(a *API) {
		if size > 0 {
			a.pageSize = size
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		a.log = log
	}
}

func NewAPI(opts ...Option) *API {
	a := &API{
		registry: make(Registry),
		pageSize: 20,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Loader() Loader {
	return a.loader
}

// LinkContext returns a copy of the default link context.
func (a *API) LinkContext() link.Context {
	return a.linkCtx
}

// RelationsOf returns the relations declared for typ, in declaration order.
// It lets the API serve as type hints when decoding documents.
func (a *API) RelationsOf(typ string) []model.RelationDescriptor {
	def, ok := a.registry.Find(typ)
	if !ok {
		return nil
	}
	out := make([]model.RelationDescriptor, len(def.Relations))
	copy(out, def.Relations)
	return out
}
