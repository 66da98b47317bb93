// Package codec encodes resources into HAL or JSON:API documents and decodes
// such documents back into the format-neutral model.
package codec

import (
	"encoding/json"
	"mime"
	"slices"
	"strings"

	"github.com/tailbits/hypermedia/model"
)

// Format is a wire format strategy. HAL and JSONAPI are the two implementations.
type Format interface {
	Name() string
	MediaType() string

	// Encode writes res as a single-resource document using links, as
	// computed by link.Resolve.
	Encode(res model.Resource, links model.LinkSet) ([]byte, error)
	// EncodeCollection writes one page of a collection. members is index
	// aligned with c.Members.
	EncodeCollection(c model.Collection, page model.LinkSet, members []model.LinkSet) ([]byte, error)

	// Decode returns the primary resource and every embedded or included
	// resource as a flat, deduplicated sequence.
	Decode(body []byte, opts ...DecodeOption) (model.Resource, []model.Resource, error)
	DecodeCollection(body []byte, opts ...DecodeOption) (CollectionDocument, error)
}

// CollectionDocument is a decoded collection page.
type CollectionDocument struct {
	Members  []model.Resource
	Included []model.Resource
	// Links holds the pagination controls of the page.
	Links model.LinkSet
}

const (
	HALMediaType     = "application/hal+json"
	JSONAPIMediaType = "application/vnd.api+json"
)

var (
	HAL     Format = hal{}
	JSONAPI Format = jsonAPI{}
)

// Formats lists the supported formats, in server preference order.
func Formats() []Format {
	return []Format{HAL, JSONAPI}
}

// Lookup resolves a format by name ("hal" or "jsonapi").
func Lookup(name string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(f.Name(), name) {
			return f, nil
		}
	}
	return nil, &model.UnsupportedFormatError{Format: name}
}

// ByMediaType resolves a format from a media type, ignoring parameters.
func ByMediaType(mediaType string) (Format, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, &model.UnsupportedFormatError{Format: mediaType}
	}
	for _, f := range Formats() {
		if f.MediaType() == mt {
			return f, nil
		}
	}
	return nil, &model.UnsupportedFormatError{Format: mediaType}
}

// Detect guesses the format of body from its top-level members.
func Detect(body []byte) (Format, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &model.MalformedDocumentError{Format: "unknown", Reason: "body is not a JSON object", Err: err}
	}
	if _, ok := top["data"]; ok {
		return JSONAPI, nil
	}
	if _, ok := top["_links"]; ok {
		return HAL, nil
	}
	return nil, &model.MalformedDocumentError{Format: "unknown", Reason: "document has neither data nor _links"}
}

func Encode(res model.Resource, links model.LinkSet, f Format) ([]byte, error) {
	if f == nil {
		return nil, &model.UnsupportedFormatError{}
	}
	return f.Encode(res, links)
}

func EncodeCollection(c model.Collection, page model.LinkSet, members []model.LinkSet, f Format) ([]byte, error) {
	if f == nil {
		return nil, &model.UnsupportedFormatError{}
	}
	return f.EncodeCollection(c, page, members)
}

func Decode(body []byte, f Format, opts ...DecodeOption) (model.Resource, []model.Resource, error) {
	if f == nil {
		return model.Resource{}, nil, &model.UnsupportedFormatError{}
	}
	return f.Decode(body, opts...)
}

func DecodeCollection(body []byte, f Format, opts ...DecodeOption) (CollectionDocument, error) {
	if f == nil {
		return CollectionDocument{}, &model.UnsupportedFormatError{}
	}
	return f.DecodeCollection(body, opts...)
}

// TypeHints describes the relations each resource type declares. Decoders
// use it to recover relationships that a document only exposes as links.
type TypeHints interface {
	RelationsOf(typ string) []model.RelationDescriptor
}

// StaticHints is a TypeHints backed by a map keyed by type name.
type StaticHints map[string][]model.RelationDescriptor

func (h StaticHints) RelationsOf(typ string) []model.RelationDescriptor {
	return h[typ]
}

type decodeOptions struct {
	hints   TypeHints
	baseURL string
}

type DecodeOption func(options *decodeOptions)

// WithTypeHints supplies relation descriptors to the decoder.
func WithTypeHints(h TypeHints) DecodeOption {
	return func(o *decodeOptions) {
		o.hints = h
	}
}

// WithBaseURL lets the decoder build self links that a document omits.
func WithBaseURL(base string) DecodeOption {
	return func(o *decodeOptions) {
		o.baseURL = base
	}
}

func newDecodeOptions(opts []DecodeOption) decodeOptions {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o decodeOptions) descriptor(typ, rel string) (model.RelationDescriptor, bool) {
	if o.hints == nil {
		return model.RelationDescriptor{}, false
	}
	for _, d := range o.hints.RelationsOf(typ) {
		if d.Name == rel {
			return d, true
		}
	}
	return model.RelationDescriptor{}, false
}

// orderRelationships sorts rels by the declaration order of typ's hints.
// Relations without a hint keep their document order after the hinted ones.
func (o decodeOptions) orderRelationships(typ string, rels []model.Relationship) {
	if o.hints == nil {
		return
	}
	descs := o.hints.RelationsOf(typ)
	rank := func(name string) int {
		i := slices.IndexFunc(descs, func(d model.RelationDescriptor) bool { return d.Name == name })
		if i < 0 {
			return len(descs)
		}
		return i
	}
	slices.SortStableFunc(rels, func(a, b model.Relationship) int {
		return rank(a.Name) - rank(b.Name)
	})
}

// included accumulates decoded side resources, deduplicated by identifier.
type included struct {
	seen map[model.Identifier]bool
	list []model.Resource
}

func newIncluded() *included {
	return &included{seen: make(map[model.Identifier]bool)}
}

func (in *included) add(res model.Resource) {
	id := res.Identifier()
	if in.seen[id] {
		return
	}
	in.seen[id] = true
	in.list = append(in.list, res)
}

func (in *included) resources() []model.Resource {
	if in.list == nil {
		return []model.Resource{}
	}
	return in.list
}
