package codec

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tailbits/hypermedia/jsonmerge"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
)

type jsonAPI struct{}

func (jsonAPI) Name() string      { return "jsonapi" }
func (jsonAPI) MediaType() string { return JSONAPIMediaType }

type resourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (j jsonAPI) Encode(res model.Resource, links model.LinkSet) ([]byte, error) {
	data := j.resourceObject(res, links, false)

	seen := map[model.Identifier]bool{res.Identifier(): true}
	included := make([]any, 0)
	if err := j.collectIncluded(res, links, seen, &included); err != nil {
		return nil, err
	}

	doc := jsonmerge.NewObject()
	doc.Set("data", data)
	if len(included) > 0 {
		doc.Set("included", included)
	}
	return json.Marshal(doc)
}

func (j jsonAPI) EncodeCollection(c model.Collection, page model.LinkSet, members []model.LinkSet) ([]byte, error) {
	if len(members) != len(c.Members) {
		return nil, fmt.Errorf("jsonapi: %d link sets for %d members", len(members), len(c.Members))
	}

	data := make([]any, 0, len(c.Members))
	seen := make(map[model.Identifier]bool, len(c.Members))
	for i, m := range c.Members {
		data = append(data, j.resourceObject(m, members[i], true))
		seen[m.Identifier()] = true
	}

	included := make([]any, 0)
	for i, m := range c.Members {
		if err := j.collectIncluded(m, members[i], seen, &included); err != nil {
			return nil, err
		}
	}

	linksObj := jsonmerge.NewObject()
	for _, rel := range page.Rels() {
		if l, ok := page.First(rel); ok {
			linksObj.Set(rel, jsonAPILink(l))
		}
	}

	doc := jsonmerge.NewObject()
	doc.Set("data", data)
	doc.Set("links", linksObj)
	if len(included) > 0 {
		doc.Set("included", included)
	}
	return json.Marshal(doc)
}

// resourceObject builds {type, id, attributes, relationships, links}. links
// holds the self link when withSelf is set, plus every control that is not a
// relationship, such as actions.
func (j jsonAPI) resourceObject(res model.Resource, links model.LinkSet, withSelf bool) *jsonmerge.Object {
	obj := jsonmerge.NewObject()
	obj.Set("type", res.Type)
	obj.Set("id", res.ID)

	attrs := res.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	obj.Set("attributes", attrs)

	if len(res.Relationships) > 0 {
		rels := jsonmerge.NewObject()
		for _, r := range res.Relationships {
			relObj := jsonmerge.NewObject()
			if l, ok := links.First(r.Name); ok {
				linksObj := jsonmerge.NewObject()
				linksObj.Set("related", l.Href)
				relObj.Set("links", linksObj)
			}
			relObj.Set("data", identifierData(r))
			rels.Set(r.Name, relObj)
		}
		obj.Set("relationships", rels)
	}

	linksObj := jsonmerge.NewObject()
	if l, ok := links.First(model.SelfRel); ok && withSelf {
		linksObj.Set(model.SelfRel, jsonAPILink(l))
	}
	for _, rel := range links.Rels() {
		if rel == model.SelfRel || res.HasRelationship(rel) {
			continue
		}
		if l, ok := links.First(rel); ok {
			linksObj.Set(rel, jsonAPILink(l))
		}
	}
	if linksObj.Len() > 0 {
		obj.Set("links", linksObj)
	}

	return obj
}

// identifierData is the linkage of a relationship: an identifier or null for
// to-one, an array for to-many. Unresolved relationships encode as null or [].
func identifierData(r model.Relationship) any {
	ids := r.Identifiers()
	if r.Cardinality == model.Many {
		out := make([]resourceIdentifier, 0, len(ids))
		for _, id := range ids {
			out = append(out, resourceIdentifier{Type: id.Type, ID: id.ID})
		}
		return out
	}
	if len(ids) == 0 {
		return nil
	}
	return resourceIdentifier{Type: ids[0].Type, ID: ids[0].ID}
}

// jsonAPILink writes a bare href unless the link carries metadata.
func jsonAPILink(l model.Link) any {
	if l.Method == "" && l.Type == "" && l.Title == "" && !l.Templated {
		return l.Href
	}
	obj := jsonmerge.NewObject()
	obj.Set("href", l.Href)
	if l.Title != "" {
		obj.Set("title", l.Title)
	}
	if l.Type != "" {
		obj.Set("type", l.Type)
	}
	meta := jsonmerge.NewObject()
	if l.Method != "" {
		meta.Set("method", l.Method)
	}
	if l.Templated {
		meta.Set("templated", true)
	}
	if meta.Len() > 0 {
		obj.Set("meta", meta)
	}
	return obj
}

// collectIncluded appends the embedded targets of res, depth first, skipping
// identifiers already in seen.
func (j jsonAPI) collectIncluded(res model.Resource, links model.LinkSet, seen map[model.Identifier]bool, out *[]any) error {
	for _, rel := range links.Rels() {
		if !links.Embedded(rel) {
			continue
		}
		r, ok := res.Relationship(rel)
		if !ok || !r.Loaded() {
			return &model.UnresolvableRelationError{Type: res.Type, ID: res.ID, Relation: rel}
		}
		nested := links.Nested(rel)
		if len(nested) != len(r.Targets) {
			return fmt.Errorf("jsonapi: relation %q of %s has %d targets but %d link sets", rel, res.Identifier(), len(r.Targets), len(nested))
		}
		for i, target := range r.Targets {
			if id := target.Identifier(); !seen[id] {
				seen[id] = true
				*out = append(*out, j.resourceObject(target, nested[i], true))
			}
			if err := j.collectIncluded(target, nested[i], seen, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j jsonAPI) Decode(body []byte, opts ...DecodeOption) (model.Resource, []model.Resource, error) {
	if err := checkEnvelope(j.Name(), jsonAPIValidator, body); err != nil {
		return model.Resource{}, nil, err
	}
	doc, err := jsonmerge.ParseObject(body)
	if err != nil {
		return model.Resource{}, nil, j.malformed("cannot parse document", err)
	}
	o := newDecodeOptions(opts)

	inc, byID, err := j.decodeIncluded(doc, o)
	if err != nil {
		return model.Resource{}, nil, err
	}

	var topSelf string
	if topLinks, ok := member[*jsonmerge.Object](doc, "links"); ok {
		if raw, ok := topLinks.Get(model.SelfRel); ok {
			if l, err := j.parseLink(raw); err == nil {
				topSelf = l.Href
			}
		}
	}

	data, ok := member[*jsonmerge.Object](doc, "data")
	if !ok {
		return model.Resource{}, nil, j.malformed("data is missing", nil)
	}
	res, err := j.decodeResource(data, o, byID, topSelf)
	if err != nil {
		return model.Resource{}, nil, err
	}
	return res, inc.resources(), nil
}

func (j jsonAPI) DecodeCollection(body []byte, opts ...DecodeOption) (CollectionDocument, error) {
	if err := checkEnvelope(j.Name(), jsonAPICollectionValidator, body); err != nil {
		return CollectionDocument{}, err
	}
	doc, err := jsonmerge.ParseObject(body)
	if err != nil {
		return CollectionDocument{}, j.malformed("cannot parse document", err)
	}
	o := newDecodeOptions(opts)

	inc, byID, err := j.decodeIncluded(doc, o)
	if err != nil {
		return CollectionDocument{}, err
	}

	data, _ := member[[]any](doc, "data")
	members := make([]model.Resource, 0, len(data))
	for _, item := range data {
		obj, ok := item.(*jsonmerge.Object)
		if !ok {
			return CollectionDocument{}, j.malformed("collection member is not an object", nil)
		}
		m, err := j.decodeResource(obj, o, byID, "")
		if err != nil {
			return CollectionDocument{}, err
		}
		members = append(members, m)
	}

	b := model.NewLinkSetBuilder()
	if linksObj, ok := member[*jsonmerge.Object](doc, "links"); ok {
		for _, rel := range linksObj.Keys() {
			raw, _ := linksObj.Get(rel)
			if raw == nil {
				continue
			}
			l, err := j.parseLink(raw)
			if err != nil {
				return CollectionDocument{}, err
			}
			b.Add(rel, l)
		}
	}

	return CollectionDocument{Members: members, Included: inc.resources(), Links: b.Build()}, nil
}

func (j jsonAPI) decodeIncluded(doc *jsonmerge.Object, o decodeOptions) (*included, map[model.Identifier]model.Resource, error) {
	inc := newIncluded()
	byID := make(map[model.Identifier]model.Resource)
	items, _ := member[[]any](doc, "included")
	for _, item := range items {
		obj, ok := item.(*jsonmerge.Object)
		if !ok {
			return nil, nil, j.malformed("included member is not an object", nil)
		}
		res, err := j.decodeResource(obj, o, nil, "")
		if err != nil {
			return nil, nil, err
		}
		inc.add(res)
		byID[res.Identifier()] = res
	}
	return inc, byID, nil
}

type decodedRelationship struct {
	name     string
	rel      model.Relationship
	declared bool
	related  string
	idents   []model.Identifier
}

// decodeResource rebuilds a resource object. Relationship targets are
// attached from byID when every target is present; pass nil to skip that.
func (j jsonAPI) decodeResource(obj *jsonmerge.Object, o decodeOptions, byID map[model.Identifier]model.Resource, fallbackSelf string) (model.Resource, error) {
	typ, _ := member[string](obj, "type")
	id, _ := member[string](obj, "id")
	if typ == "" || id == "" {
		return model.Resource{}, j.malformed("resource object has no type or id", nil)
	}

	attrs := make(map[string]any)
	if attrObj, ok := member[*jsonmerge.Object](obj, "attributes"); ok {
		attrs = attrObj.Map()
	}

	var decoded []decodedRelationship
	if relsObj, ok := member[*jsonmerge.Object](obj, "relationships"); ok {
		for _, name := range relsObj.Keys() {
			relObj, ok := member[*jsonmerge.Object](relsObj, name)
			if !ok {
				return model.Resource{}, j.malformed(fmt.Sprintf("relationship %q is not an object", name), nil)
			}
			d, err := j.decodeRelationship(typ, name, relObj, o)
			if err != nil {
				return model.Resource{}, err
			}
			decoded = append(decoded, d)
		}
	}

	resLinks, _ := member[*jsonmerge.Object](obj, "links")
	self := j.selfHref(typ, id, resLinks, fallbackSelf, decoded, o)

	b := model.NewLinkSetBuilder()
	if self != "" {
		b.Add(model.SelfRel, model.Link{Href: self})
	}

	rels := make([]model.Relationship, 0, len(decoded))
	for _, d := range decoded {
		href := d.related
		if href == "" && self != "" {
			href = self + "/" + url.PathEscape(d.name)
		}

		targets, ok := lookupTargets(byID, d.idents)
		switch {
		case ok && d.declared:
			r := d.rel.WithTargets(targets...)
			nested := make([]model.LinkSet, 0, len(targets))
			for _, t := range targets {
				nested = append(nested, t.Links)
			}
			b.Embed(d.name, model.Link{Href: href}, nested...)
			rels = append(rels, r)
			continue
		case href != "":
			b.Add(d.name, model.Link{Href: href})
		}
		if d.declared {
			rels = append(rels, d.rel)
		}
	}

	if resLinks != nil {
		for _, rel := range resLinks.Keys() {
			if rel == model.SelfRel || b.Has(rel) {
				continue
			}
			raw, _ := resLinks.Get(rel)
			if raw == nil {
				continue
			}
			l, err := j.parseLink(raw)
			if err != nil {
				return model.Resource{}, err
			}
			b.Add(rel, l)
		}
	}

	o.orderRelationships(typ, rels)
	res, err := model.New(typ, id, attrs, rels...)
	if err != nil {
		return model.Resource{}, j.malformed("invalid resource", err)
	}
	res.Links = b.Build()
	return res, nil
}

func (j jsonAPI) decodeRelationship(typ, name string, relObj *jsonmerge.Object, o decodeOptions) (decodedRelationship, error) {
	d := decodedRelationship{name: name, declared: true}
	if linksObj, ok := member[*jsonmerge.Object](relObj, "links"); ok {
		if raw, ok := linksObj.Get("related"); ok && raw != nil {
			l, err := j.parseLink(raw)
			if err != nil {
				return d, err
			}
			d.related = l.Href
		}
	}

	desc, hinted := o.descriptor(typ, name)
	fallbackType := name
	if hinted {
		fallbackType = desc.TargetType
	}

	data, hasData := relObj.Get("data")
	switch v := data.(type) {
	case nil:
		switch {
		case hasData:
			d.rel = model.Unresolved(name, fallbackType, model.One)
		case hinted:
			d.rel = model.Unresolved(name, desc.TargetType, desc.Cardinality)
		default:
			d.declared = false
		}
	case *jsonmerge.Object:
		ident, err := j.parseIdentifier(name, v)
		if err != nil {
			return d, err
		}
		d.idents = []model.Identifier{ident}
		d.rel = model.HasOne(name, ident.Type, ident.ID)
	case []any:
		ids := make([]string, 0, len(v))
		targetType := fallbackType
		for i, item := range v {
			obj, ok := item.(*jsonmerge.Object)
			if !ok {
				return d, j.malformed(fmt.Sprintf("relationship %q contains a non-object identifier", name), nil)
			}
			ident, err := j.parseIdentifier(name, obj)
			if err != nil {
				return d, err
			}
			if i == 0 {
				targetType = ident.Type
			}
			d.idents = append(d.idents, ident)
			ids = append(ids, ident.ID)
		}
		d.rel = model.HasMany(name, targetType, ids...)
	default:
		return d, j.malformed(fmt.Sprintf("relationship %q data must be null, an object or an array", name), nil)
	}
	return d, nil
}

// selfHref picks the first available of: the resource's links.self, the
// document's links.self, the configured base URL, or a related link with the
// relation suffix removed.
func (j jsonAPI) selfHref(typ, id string, resLinks *jsonmerge.Object, fallback string, rels []decodedRelationship, o decodeOptions) string {
	if resLinks != nil {
		if raw, ok := resLinks.Get(model.SelfRel); ok && raw != nil {
			if l, err := j.parseLink(raw); err == nil {
				return l.Href
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	if o.baseURL != "" {
		return link.SelfHref(o.baseURL, typ, id)
	}
	for _, d := range rels {
		if self, ok := strings.CutSuffix(d.related, "/"+url.PathEscape(d.name)); ok && self != "" {
			return self
		}
	}
	return ""
}

func (j jsonAPI) parseIdentifier(rel string, obj *jsonmerge.Object) (model.Identifier, error) {
	typ, _ := member[string](obj, "type")
	id, _ := member[string](obj, "id")
	if typ == "" || id == "" {
		return model.Identifier{}, j.malformed(fmt.Sprintf("relationship %q has an identifier without type or id", rel), nil)
	}
	return model.Identifier{Type: typ, ID: id}, nil
}

func (j jsonAPI) parseLink(raw any) (model.Link, error) {
	switch v := raw.(type) {
	case string:
		return model.Link{Href: v}, nil
	case *jsonmerge.Object:
		href, ok := member[string](v, "href")
		if !ok {
			return model.Link{}, j.malformed("link object has no href", nil)
		}
		l := model.Link{Href: href}
		l.Title, _ = member[string](v, "title")
		l.Type, _ = member[string](v, "type")
		if meta, ok := member[*jsonmerge.Object](v, "meta"); ok {
			l.Method, _ = member[string](meta, "method")
			l.Templated, _ = member[bool](meta, "templated")
		}
		return l, nil
	default:
		return model.Link{}, j.malformed("link must be a string or an object", nil)
	}
}

func (j jsonAPI) malformed(reason string, err error) error {
	return &model.MalformedDocumentError{Format: j.Name(), Reason: reason, Err: err}
}

// lookupTargets returns the resources for idents when all of them are known.
func lookupTargets(byID map[model.Identifier]model.Resource, idents []model.Identifier) ([]model.Resource, bool) {
	if byID == nil || len(idents) == 0 {
		return nil, false
	}
	targets := make([]model.Resource, 0, len(idents))
	for _, ident := range idents {
		t, ok := byID[ident]
		if !ok {
			return nil, false
		}
		targets = append(targets, t)
	}
	return targets, true
}
