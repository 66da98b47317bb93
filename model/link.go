package model

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Link is a single hypermedia control.
type Link struct {
	Href      string `json:"href"`
	Method    string `json:"method,omitempty"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

type linkEntry struct {
	rel    string
	links  []Link
	embed  bool
	nested []LinkSet
}

// LinkSet is an ordered mapping from relation name to one or more links.
//
// A rel may be marked for embedding, in which case it also carries the link
// sets of the embedded targets, index-aligned with the relationship's targets.
// The zero value is an empty set. A LinkSet is never mutated once built.
type LinkSet struct {
	entries []linkEntry
}

func (s LinkSet) Len() int {
	return len(s.entries)
}

// Rels returns the relation names in insertion order.
func (s LinkSet) Rels() []string {
	rels := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		rels = append(rels, e.rel)
	}
	return rels
}

func (s LinkSet) find(rel string) (linkEntry, bool) {
	for _, e := range s.entries {
		if e.rel == rel {
			return e, true
		}
	}
	return linkEntry{}, false
}

func (s LinkSet) Has(rel string) bool {
	_, ok := s.find(rel)
	return ok
}

// Get returns a copy of the links registered under rel.
func (s LinkSet) Get(rel string) []Link {
	e, ok := s.find(rel)
	if !ok {
		return nil
	}
	return slices.Clone(e.links)
}

// First returns the first link registered under rel.
func (s LinkSet) First(rel string) (Link, bool) {
	e, ok := s.find(rel)
	if !ok || len(e.links) == 0 {
		return Link{}, false
	}
	return e.links[0], true
}

// Embedded reports whether rel is marked for inline embedding.
func (s LinkSet) Embedded(rel string) bool {
	e, ok := s.find(rel)
	return ok && e.embed
}

// Nested returns the link sets of the embedded targets of rel.
func (s LinkSet) Nested(rel string) []LinkSet {
	e, ok := s.find(rel)
	if !ok {
		return nil
	}
	return slices.Clone(e.nested)
}

// Equal reports whether both sets hold the same rels, in the same order, with the same links and embed marks.
func (s LinkSet) Equal(o LinkSet) bool {
	return slices.EqualFunc(s.entries, o.entries, func(a, b linkEntry) bool {
		return a.rel == b.rel &&
			a.embed == b.embed &&
			slices.Equal(a.links, b.links) &&
			slices.EqualFunc(a.nested, b.nested, LinkSet.Equal)
	})
}

// MarshalJSON writes rels in insertion order. A rel with a single link is an
// object, a rel with several links is an array.
func (s LinkSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.rel)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if len(e.links) == 1 {
			val, err = json.Marshal(e.links[0])
		} else {
			val, err = json.Marshal(e.links)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LinkSetBuilder accumulates links before freezing them into a LinkSet.
type LinkSetBuilder struct {
	entries []linkEntry
	index   map[string]int
}

func NewLinkSetBuilder() *LinkSetBuilder {
	return &LinkSetBuilder{index: make(map[string]int)}
}

func (b *LinkSetBuilder) entry(rel string) *linkEntry {
	if i, ok := b.index[rel]; ok {
		return &b.entries[i]
	}
	b.index[rel] = len(b.entries)
	b.entries = append(b.entries, linkEntry{rel: rel})
	return &b.entries[len(b.entries)-1]
}

// Add appends l under rel. Repeated calls for the same rel produce a multi-link rel.
func (b *LinkSetBuilder) Add(rel string, l Link) *LinkSetBuilder {
	e := b.entry(rel)
	e.links = append(e.links, l)
	return b
}

// Embed registers rel for inline embedding, along with the link sets of its targets.
func (b *LinkSetBuilder) Embed(rel string, l Link, nested ...LinkSet) *LinkSetBuilder {
	e := b.entry(rel)
	e.links = append(e.links, l)
	e.embed = true
	if nested == nil {
		nested = []LinkSet{}
	}
	e.nested = append(e.nested, nested...)
	return b
}

func (b *LinkSetBuilder) Has(rel string) bool {
	_, ok := b.index[rel]
	return ok
}

func (b *LinkSetBuilder) Build() LinkSet {
	entries := make([]linkEntry, len(b.entries))
	for i, e := range b.entries {
		entries[i] = linkEntry{
			rel:    e.rel,
			links:  slices.Clone(e.links),
			embed:  e.embed,
			nested: slices.Clone(e.nested),
		}
	}
	return LinkSet{entries: entries}
}
