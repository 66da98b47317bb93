package hypermedia

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

// ErrInvalidCursor is returned when a page cursor cannot be interpreted.
var ErrInvalidCursor = errors.New("invalid cursor")

// ErrInvalidPageSize is returned when no positive page size is configured.
var ErrInvalidPageSize = errors.New("page size must be positive")

// ErrNoLoader is returned by Render and RenderRelated when the API has no Loader.
var ErrNoLoader = errors.New("no loader configured")

type renderOptions struct {
	embed    []string
	embedSet bool
	linkOnly []string
	pageSize int
	cursor   string
}

type RenderOption func(*renderOptions)

// Embed inlines the named relations. Unlike the API's default embed list,
// naming a relation the type does not declare is an error.
func Embed(rels ...string) RenderOption {
	return func(o *renderOptions) {
		o.embed = append(o.embed, rels...)
		o.embedSet = true
	}
}

// LinkOnly keeps the named relations as links even when they would be embedded.
func LinkOnly(rels ...string) RenderOption {
	return func(o *renderOptions) {
		o.linkOnly = append(o.linkOnly, rels...)
	}
}

// WithPageSize overrides the default page size for one render. Sizes below
// one fall back to the default.
func WithPageSize(size int) RenderOption {
	return func(o *renderOptions) {
		o.pageSize = size
	}
}

func WithCursor(cursor string) RenderOption {
	return func(o *renderOptions) {
		o.cursor = cursor
	}
}

func newRenderOptions(opts []RenderOption) renderOptions {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// linkContext merges the API defaults, the render options and the actions of def.
func (a *API) linkContext(def TypeDef, o renderOptions) link.Context {
	ctx := a.linkCtx
	if o.embedSet {
		ctx.Embed = slices.Clone(o.embed)
	} else {
		ctx.Embed = slices.DeleteFunc(slices.Clone(a.linkCtx.Embed), func(name string) bool {
			_, ok := def.Relation(name)
			return !ok
		})
	}
	ctx.LinkOnly = append(slices.Clone(a.linkCtx.LinkOnly), o.linkOnly...)
	ctx.Actions = slices.Clone(def.Actions)
	ctx.Page = nil
	return ctx
}

// Represent resolves the links of res under ctx and encodes it in format f.
func (a *API) Represent(res model.Resource, f codec.Format, ctx link.Context) ([]byte, error) {
	links, err := link.Resolve(res, ctx)
	if err != nil {
		return nil, err
	}
	return codec.Encode(res, links, f)
}

// Render loads a resource, loads the targets of the relations to embed and encodes the result.
func (a *API) Render(ctx context.Context, typ, id string, f codec.Format, opts ...RenderOption) ([]byte, error) {
	res, lctx, err := a.load(ctx, typ, id, newRenderOptions(opts))
	if err != nil {
		return nil, err
	}
	return a.Represent(res, f, lctx)
}

func (a *API) load(ctx context.Context, typ, id string, o renderOptions) (model.Resource, link.Context, error) {
	if a.loader == nil {
		return model.Resource{}, link.Context{}, ErrNoLoader
	}
	def, ok := a.GetType(typ)
	if !ok {
		return model.Resource{}, link.Context{}, &model.UnknownTypeError{Type: typ}
	}

	res, err := a.loader.LoadResource(ctx, typ, id)
	if err != nil {
		return model.Resource{}, link.Context{}, fmt.Errorf("load %s/%s: %w", typ, id, err)
	}

	lctx := a.linkContext(def, o)
	for _, name := range lctx.Embed {
		if slices.Contains(lctx.LinkOnly, name) {
			continue
		}
		rel, ok := res.Relationship(name)
		if !ok {
			return model.Resource{}, link.Context{}, &model.UnresolvableRelationError{Type: typ, ID: id, Relation: name}
		}
		if rel.Loaded() {
			continue
		}

		targets, err := a.loader.LoadRelated(ctx, typ, id, name)
		if err != nil {
			return model.Resource{}, link.Context{}, fmt.Errorf("load %s of %s/%s: %w", name, typ, id, err)
		}
		if rel.Cardinality == model.One && len(targets) > 1 {
			a.log.WarnContext(ctx, "to-one relation loaded several targets", "type", typ, "id", id, "relation", name, "count", len(targets))
			targets = targets[:1]
		}
		res = res.WithRelationship(rel.WithTargets(targets...))
	}

	a.log.DebugContext(ctx, "loaded resource", "type", typ, "id", id, "embed", lctx.Embed)
	return res, lctx, nil
}

// RenderRelated encodes one page of the to-many relation of a resource as a collection.
// Without a PageLoader the whole relation is loaded and paged in memory, using
// offsets as cursors.
func (a *API) RenderRelated(ctx context.Context, typ, id, relation string, f codec.Format, opts ...RenderOption) ([]byte, error) {
	coll, lctx, err := a.loadPage(ctx, typ, id, relation, newRenderOptions(opts))
	if err != nil {
		return nil, err
	}

	page, members, err := link.ResolveCollection(coll, lctx)
	if err != nil {
		return nil, err
	}
	return codec.EncodeCollection(coll, page, members, f)
}

// RenderTarget encodes the target of a to-one relation as a resource
// document. An empty relation is ErrNotFound.
func (a *API) RenderTarget(ctx context.Context, typ, id, relation string, f codec.Format, opts ...RenderOption) ([]byte, error) {
	if a.loader == nil {
		return nil, ErrNoLoader
	}
	def, ok := a.GetType(typ)
	if !ok {
		return nil, &model.UnknownTypeError{Type: typ}
	}
	rd, ok := def.Relation(relation)
	if !ok {
		return nil, &model.RelationNotFoundError{Type: typ, ID: id, Relation: relation}
	}
	if rd.Cardinality != model.One {
		return nil, fmt.Errorf("%s of %s/%s has many targets: %w", relation, typ, id, ErrNotFound)
	}

	targets, err := a.loader.LoadRelated(ctx, typ, id, relation)
	if err != nil {
		return nil, fmt.Errorf("load %s of %s/%s: %w", relation, typ, id, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s of %s/%s has no target: %w", relation, typ, id, ErrNotFound)
	}

	target := targets[0]
	if a.HasType(target.Type) {
		return a.Render(ctx, target.Type, target.ID, f, opts...)
	}
	return a.Represent(target, f, a.linkContext(TypeDef{Name: target.Type}, newRenderOptions(opts)))
}

func (a *API) loadPage(ctx context.Context, typ, id, relation string, o renderOptions) (model.Collection, link.Context, error) {
	if a.loader == nil {
		return model.Collection{}, link.Context{}, ErrNoLoader
	}
	def, ok := a.GetType(typ)
	if !ok {
		return model.Collection{}, link.Context{}, &model.UnknownTypeError{Type: typ}
	}
	rd, ok := def.Relation(relation)
	if !ok {
		return model.Collection{}, link.Context{}, &model.RelationNotFoundError{Type: typ, ID: id, Relation: relation}
	}

	size := o.pageSize
	if size <= 0 {
		size = a.pageSize
	}
	if size <= 0 {
		return model.Collection{}, link.Context{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}

	page := link.Page{Cursor: o.cursor, Size: size}
	var members []model.Resource
	if pl, ok := a.loader.(PageLoader); ok {
		var err error
		members, page.Next, err = pl.LoadRelatedPage(ctx, typ, id, relation, o.cursor, size)
		if err != nil {
			return model.Collection{}, link.Context{}, fmt.Errorf("load page of %s of %s/%s: %w", relation, typ, id, err)
		}
		page.HasPrev = o.cursor != ""
	} else {
		all, err := a.loader.LoadRelated(ctx, typ, id, relation)
		if err != nil {
			return model.Collection{}, link.Context{}, fmt.Errorf("load %s of %s/%s: %w", relation, typ, id, err)
		}
		members, page, err = pageInMemory(all, o.cursor, size)
		if err != nil {
			return model.Collection{}, link.Context{}, err
		}
	}

	targetDef, _ := a.GetType(rd.TargetType)
	lctx := a.linkContext(targetDef, o)
	lctx.Page = &page

	coll := model.Collection{
		Owner:      &model.Identifier{Type: typ, ID: id},
		Relation:   relation,
		TargetType: rd.TargetType,
		Members:    members,
	}
	return coll, lctx, nil
}

// pageInMemory slices all using decimal offsets as cursors.
func pageInMemory(all []model.Resource, cursor string, size int) ([]model.Resource, link.Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, link.Page{}, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
		}
		offset = n
	}

	page := link.Page{Cursor: cursor, Size: size}
	end := min(offset+size, len(all))
	start := min(offset, len(all))

	if end < len(all) {
		page.Next = strconv.Itoa(end)
	}
	if offset > 0 {
		page.HasPrev = true
		if prev := offset - size; prev > 0 {
			page.Prev = strconv.Itoa(prev)
		}
	}
	if len(all) > 0 {
		if last := ((len(all) - 1) / size) * size; last > 0 {
			page.Last = strconv.Itoa(last)
		}
	}

	return slices.Clone(all[start:end]), page, nil
}
