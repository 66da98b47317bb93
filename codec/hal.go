package codec

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/tailbits/hypermedia/jsonmerge"
	"github.com/tailbits/hypermedia/model"
)

const (
	halLinks    = "_links"
	halEmbedded = "_embedded"
)

type hal struct{}

func (hal) Name() string      { return "hal" }
func (hal) MediaType() string { return HALMediaType }

func (h hal) Encode(res model.Resource, links model.LinkSet) ([]byte, error) {
	doc, err := h.document(res, links)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// document lays out attributes (sorted), then _links, then _embedded when
// at least one relation is embedded.
func (h hal) document(res model.Resource, links model.LinkSet) (*jsonmerge.Object, error) {
	doc := jsonmerge.NewObject()
	for _, k := range slices.Sorted(maps.Keys(res.Attributes)) {
		doc.Set(k, res.Attributes[k])
	}

	linksObj := jsonmerge.NewObject()
	var embedded *jsonmerge.Object
	for _, rel := range links.Rels() {
		if !links.Embedded(rel) {
			linksObj.Set(rel, halLinkValue(links.Get(rel)))
			continue
		}

		r, ok := res.Relationship(rel)
		if !ok || !r.Loaded() {
			return nil, &model.UnresolvableRelationError{Type: res.Type, ID: res.ID, Relation: rel}
		}
		nested := links.Nested(rel)
		if len(nested) != len(r.Targets) {
			return nil, fmt.Errorf("hal: relation %q of %s has %d targets but %d link sets", rel, res.Identifier(), len(r.Targets), len(nested))
		}

		docs := make([]any, 0, len(r.Targets))
		for i, target := range r.Targets {
			d, err := h.document(target, nested[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}

		if embedded == nil {
			embedded = jsonmerge.NewObject()
		}
		switch {
		case r.Cardinality == model.Many:
			embedded.Set(rel, docs)
		case len(docs) == 0:
			embedded.Set(rel, nil)
		default:
			embedded.Set(rel, docs[0])
		}
	}

	doc.Set(halLinks, linksObj)
	if embedded != nil {
		doc.Set(halEmbedded, embedded)
	}
	return doc, nil
}

func halLinkValue(ls []model.Link) any {
	if len(ls) == 1 {
		return ls[0]
	}
	return ls
}

// collectionRel names the _embedded entry holding collection members.
func collectionRel(c model.Collection) string {
	if c.Relation != "" {
		return c.Relation
	}
	return c.TargetType
}

func (h hal) EncodeCollection(c model.Collection, page model.LinkSet, members []model.LinkSet) ([]byte, error) {
	if len(members) != len(c.Members) {
		return nil, fmt.Errorf("hal: %d link sets for %d members", len(members), len(c.Members))
	}

	doc := jsonmerge.NewObject()
	linksObj := jsonmerge.NewObject()
	for _, rel := range page.Rels() {
		linksObj.Set(rel, halLinkValue(page.Get(rel)))
	}
	doc.Set(halLinks, linksObj)

	items := make([]any, 0, len(c.Members))
	for i, m := range c.Members {
		d, err := h.document(m, members[i])
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	embedded := jsonmerge.NewObject()
	embedded.Set(collectionRel(c), items)
	doc.Set(halEmbedded, embedded)

	return json.Marshal(doc)
}

func (h hal) Decode(body []byte, opts ...DecodeOption) (model.Resource, []model.Resource, error) {
	if err := checkEnvelope(h.Name(), halValidator, body); err != nil {
		return model.Resource{}, nil, err
	}
	obj, err := jsonmerge.ParseObject(body)
	if err != nil {
		return model.Resource{}, nil, h.malformed("cannot parse document", err)
	}

	inc := newIncluded()
	res, err := h.decodeObject(obj, newDecodeOptions(opts), inc)
	if err != nil {
		return model.Resource{}, nil, err
	}
	return res, inc.resources(), nil
}

func (h hal) DecodeCollection(body []byte, opts ...DecodeOption) (CollectionDocument, error) {
	if err := checkEnvelope(h.Name(), halValidator, body); err != nil {
		return CollectionDocument{}, err
	}
	obj, err := jsonmerge.ParseObject(body)
	if err != nil {
		return CollectionDocument{}, h.malformed("cannot parse document", err)
	}
	o := newDecodeOptions(opts)

	linksObj, _ := member[*jsonmerge.Object](obj, halLinks)
	b := model.NewLinkSetBuilder()
	for _, rel := range linksObj.Keys() {
		v, _ := linksObj.Get(rel)
		ls, err := h.parseLinks(rel, v)
		if err != nil {
			return CollectionDocument{}, err
		}
		for _, l := range ls {
			b.Add(rel, l)
		}
	}

	inc := newIncluded()
	members := make([]model.Resource, 0)
	if embedded, ok := member[*jsonmerge.Object](obj, halEmbedded); ok {
		for _, rel := range embedded.Keys() {
			v, _ := embedded.Get(rel)
			items, ok := v.([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				m, ok := item.(*jsonmerge.Object)
				if !ok {
					return CollectionDocument{}, h.malformed(fmt.Sprintf("member of %q is not an object", rel), nil)
				}
				res, err := h.decodeObject(m, o, inc)
				if err != nil {
					return CollectionDocument{}, err
				}
				members = append(members, res)
			}
			break
		}
	}

	return CollectionDocument{Members: members, Included: inc.resources(), Links: b.Build()}, nil
}

func (h hal) decodeObject(obj *jsonmerge.Object, o decodeOptions, inc *included) (model.Resource, error) {
	linksObj, ok := member[*jsonmerge.Object](obj, halLinks)
	if !ok {
		return model.Resource{}, h.malformed("_links is missing", nil)
	}
	selfRaw, _ := linksObj.Get(model.SelfRel)
	selfLinks, err := h.parseLinks(model.SelfRel, selfRaw)
	if err != nil {
		return model.Resource{}, err
	}
	if len(selfLinks) == 0 {
		return model.Resource{}, h.malformed("_links.self is missing", nil)
	}
	self := selfLinks[0].Href
	typ, id, err := identityFromHref(self)
	if err != nil {
		return model.Resource{}, h.malformed(err.Error(), nil)
	}

	attrs := make(map[string]any)
	for _, k := range obj.Keys() {
		if k == halLinks || k == halEmbedded {
			continue
		}
		v, _ := obj.Get(k)
		attrs[k] = jsonmerge.Plain(v)
	}

	embedded, _ := member[*jsonmerge.Object](obj, halEmbedded)
	isEmbedded := func(rel string) bool {
		return embedded != nil && embedded.Has(rel)
	}

	b := model.NewLinkSetBuilder()
	var rels []model.Relationship
	for _, rel := range linksObj.Keys() {
		if isEmbedded(rel) {
			continue
		}
		v, _ := linksObj.Get(rel)
		ls, err := h.parseLinks(rel, v)
		if err != nil {
			return model.Resource{}, err
		}
		for _, l := range ls {
			b.Add(rel, l)
		}
		if rel == model.SelfRel {
			continue
		}
		if d, ok := o.descriptor(typ, rel); ok {
			rels = append(rels, model.Unresolved(rel, d.TargetType, d.Cardinality))
		}
	}

	if embedded != nil {
		for _, rel := range embedded.Keys() {
			if rel == model.SelfRel {
				return model.Resource{}, h.malformed("_embedded must not contain self", nil)
			}
			v, _ := embedded.Get(rel)

			var (
				targets     []model.Resource
				cardinality = model.One
			)
			switch v := v.(type) {
			case nil:
			case *jsonmerge.Object:
				t, err := h.decodeObject(v, o, inc)
				if err != nil {
					return model.Resource{}, err
				}
				targets = append(targets, t)
			case []any:
				cardinality = model.Many
				for _, item := range v {
					itemObj, ok := item.(*jsonmerge.Object)
					if !ok {
						return model.Resource{}, h.malformed(fmt.Sprintf("_embedded.%s contains a non-object", rel), nil)
					}
					t, err := h.decodeObject(itemObj, o, inc)
					if err != nil {
						return model.Resource{}, err
					}
					targets = append(targets, t)
				}
			default:
				return model.Resource{}, h.malformed(fmt.Sprintf("_embedded.%s must be an object, an array or null", rel), nil)
			}

			nested := make([]model.LinkSet, 0, len(targets))
			for _, t := range targets {
				inc.add(t)
				nested = append(nested, t.Links)
			}

			targetType := rel
			switch d, ok := o.descriptor(typ, rel); {
			case len(targets) > 0:
				targetType = targets[0].Type
			case ok:
				targetType = d.TargetType
			}

			href := self + "/" + url.PathEscape(rel)
			if raw, ok := linksObj.Get(rel); ok {
				if ls, err := h.parseLinks(rel, raw); err == nil && len(ls) > 0 {
					href = ls[0].Href
				}
			}
			b.Embed(rel, model.Link{Href: href}, nested...)

			r := model.Relationship{Name: rel, TargetType: targetType, Cardinality: cardinality}
			rels = append(rels, r.WithTargets(targets...))
		}
	}

	o.orderRelationships(typ, rels)
	res, err := model.New(typ, id, attrs, rels...)
	if err != nil {
		return model.Resource{}, h.malformed("invalid resource", err)
	}
	res.Links = b.Build()
	return res, nil
}

func (h hal) parseLinks(rel string, v any) ([]model.Link, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *jsonmerge.Object:
		l, err := h.parseLink(rel, v)
		if err != nil {
			return nil, err
		}
		return []model.Link{l}, nil
	case []any:
		ls := make([]model.Link, 0, len(v))
		for _, item := range v {
			obj, ok := item.(*jsonmerge.Object)
			if !ok {
				return nil, h.malformed(fmt.Sprintf("_links.%s contains a non-object", rel), nil)
			}
			l, err := h.parseLink(rel, obj)
			if err != nil {
				return nil, err
			}
			ls = append(ls, l)
		}
		return ls, nil
	default:
		return nil, h.malformed(fmt.Sprintf("_links.%s must be an object or an array", rel), nil)
	}
}

func (h hal) parseLink(rel string, obj *jsonmerge.Object) (model.Link, error) {
	href, ok := member[string](obj, "href")
	if !ok {
		return model.Link{}, h.malformed(fmt.Sprintf("_links.%s has no href", rel), nil)
	}
	l := model.Link{Href: href}
	l.Method, _ = member[string](obj, "method")
	l.Type, _ = member[string](obj, "type")
	l.Title, _ = member[string](obj, "title")
	l.Templated, _ = member[bool](obj, "templated")
	return l, nil
}

func (h hal) malformed(reason string, err error) error {
	return &model.MalformedDocumentError{Format: h.Name(), Reason: reason, Err: err}
}

// identityFromHref takes type and id from the last two path segments of a self href.
func identityFromHref(href string) (typ, id string, err error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", fmt.Errorf("self link %q is not a URL", href)
	}
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("cannot determine type and id from self link %q", href)
	}
	if typ, err = url.PathUnescape(segments[len(segments)-2]); err != nil {
		return "", "", fmt.Errorf("self link %q: %w", href, err)
	}
	if id, err = url.PathUnescape(segments[len(segments)-1]); err != nil {
		return "", "", fmt.Errorf("self link %q: %w", href, err)
	}
	if typ == "" || id == "" {
		return "", "", fmt.Errorf("cannot determine type and id from self link %q", href)
	}
	return typ, id, nil
}

// member returns obj[key] when it holds a T.
func member[T any](obj *jsonmerge.Object, key string) (T, bool) {
	var zero T
	if obj == nil {
		return zero, false
	}
	v, ok := obj.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
