// Package link computes the hypermedia controls of resources and collections.
package link

import (
	"net/url"
	"slices"
	"strings"

	"github.com/tailbits/hypermedia/model"
)

// Action is a state transition exposed as a link carrying an HTTP method.
type Action struct {
	Name   string
	Method string
	// Allowed reports whether the action applies to the resource. Nil means always.
	Allowed func(model.Resource) bool
}

// Context is the request-scoped input of the resolver.
type Context struct {
	BaseURL string
	// Embed lists relations to inline when their targets are loaded.
	Embed []string
	// LinkOnly lists relations that are never inlined. It wins over Embed.
	LinkOnly []string
	Actions  []Action
	// Page is the pagination state when resolving a collection.
	Page     *Page
	PageRels PageRels
}

func (c Context) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c Context) embeds(rel string) bool {
	return slices.Contains(c.Embed, rel) && !slices.Contains(c.LinkOnly, rel)
}

// nested is the context used for embedded targets and collection members.
func (c Context) nested() Context {
	return Context{
		BaseURL:  c.BaseURL,
		Embed:    c.Embed,
		LinkOnly: c.LinkOnly,
		PageRels: c.PageRels,
	}
}

// SelfHref is the canonical URL of a resource: {base}/{type}/{id}.
func SelfHref(base, typ, id string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(typ) + "/" + url.PathEscape(id)
}

// RelatedHref is the URL of a relation of a resource: {base}/{type}/{id}/{relation}.
func RelatedHref(base, typ, id, relation string) string {
	return SelfHref(base, typ, id) + "/" + url.PathEscape(relation)
}

// Resolve computes the LinkSet of res. The result depends only on its inputs.
//
// The set holds self first, then one entry per relationship in declaration
// order, then the allowed actions. A relationship is marked for embedding when
// ctx embeds it and its targets are loaded; embedded entries carry the link
// sets of their targets.
func Resolve(res model.Resource, ctx Context) (model.LinkSet, error) {
	for _, name := range ctx.Embed {
		if !res.HasRelationship(name) {
			return model.LinkSet{}, &model.UnresolvableRelationError{Type: res.Type, ID: res.ID, Relation: name}
		}
	}
	return resolve(res, ctx, true), nil
}

func resolve(res model.Resource, ctx Context, withActions bool) model.LinkSet {
	base := ctx.base()
	b := model.NewLinkSetBuilder()
	b.Add(model.SelfRel, model.Link{Href: SelfHref(base, res.Type, res.ID)})

	for _, rel := range res.Relationships {
		l := model.Link{Href: RelatedHref(base, res.Type, res.ID, rel.Name)}
		if !ctx.embeds(rel.Name) || !rel.Loaded() {
			b.Add(rel.Name, l)
			continue
		}

		nested := make([]model.LinkSet, 0, len(rel.Targets))
		for _, target := range rel.Targets {
			nested = append(nested, resolve(target, ctx.nested(), false))
		}
		b.Embed(rel.Name, l, nested...)
	}

	if withActions {
		for _, a := range ctx.Actions {
			if b.Has(a.Name) {
				continue
			}
			if a.Allowed != nil && !a.Allowed(res) {
				continue
			}
			b.Add(a.Name, model.Link{Href: RelatedHref(base, res.Type, res.ID, a.Name), Method: a.Method})
		}
	}

	return b.Build()
}

// CollectionHref is the URL of a collection: the related URL of its owner, or {base}/{type}.
func CollectionHref(base string, c model.Collection) string {
	if c.Owner != nil {
		return RelatedHref(base, c.Owner.Type, c.Owner.ID, c.Relation)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(c.TargetType)
}

// ResolveCollection computes the page links of c and the link sets of its members.
//
// Besides self, first is always present, prev only past the first page, next
// only when another page exists and last only when its cursor is known.
func ResolveCollection(c model.Collection, ctx Context) (model.LinkSet, []model.LinkSet, error) {
	switch {
	case c.Owner == nil && c.TargetType == "":
		return model.LinkSet{}, nil, &model.InvalidResourceError{Reason: "collection has neither an owner nor a target type"}
	case c.Owner != nil && c.Relation == "":
		return model.LinkSet{}, nil, &model.InvalidResourceError{Type: c.Owner.Type, ID: c.Owner.ID, Reason: "collection relation is empty"}
	}

	rels := ctx.PageRels.WithDefaults()
	href := CollectionHref(ctx.base(), c)

	b := model.NewLinkSetBuilder()
	if p := ctx.Page; p != nil {
		b.Add(model.SelfRel, model.Link{Href: rels.href(href, p.Cursor, p.Size)})
		b.Add(rels.First, model.Link{Href: rels.href(href, "", p.Size)})
		if p.HasPrev || p.Prev != "" {
			b.Add(rels.Prev, model.Link{Href: rels.href(href, p.Prev, p.Size)})
		}
		if p.Next != "" {
			b.Add(rels.Next, model.Link{Href: rels.href(href, p.Next, p.Size)})
		}
		if p.Last != "" {
			b.Add(rels.Last, model.Link{Href: rels.href(href, p.Last, p.Size)})
		}
	} else {
		b.Add(model.SelfRel, model.Link{Href: href})
	}

	members := make([]model.LinkSet, 0, len(c.Members))
	for _, m := range c.Members {
		mctx := ctx.nested()
		mctx.Actions = ctx.Actions
		mctx.Embed = slices.DeleteFunc(slices.Clone(ctx.Embed), func(name string) bool {
			return !m.HasRelationship(name)
		})
		members = append(members, resolve(m, mctx, true))
	}

	return b.Build(), members, nil
}
