package model

import (
	"encoding/json"
	"fmt"
)

// Cardinality is the number of targets a relationship may point at.
type Cardinality int

const (
	One Cardinality = iota + 1
	Many
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return "unknown"
	}
}

// ParseCardinality is the inverse of Cardinality.String.
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "one":
		return One, nil
	case "many":
		return Many, nil
	default:
		return 0, fmt.Errorf("unknown cardinality %q", s)
	}
}

func (c Cardinality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cardinality) UnmarshalText(text []byte) error {
	parsed, err := ParseCardinality(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Identifier is the (type, id) pair that uniquely names a Resource.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (i Identifier) String() string {
	return i.Type + "/" + i.ID
}

// Resource is one domain entity exposed over the API, independent of any wire format.
type Resource struct {
	Type          string
	ID            string
	Attributes    map[string]any
	Relationships []Relationship

	// Links is filled in by decoders. Encoders take the LinkSet as a separate argument.
	Links LinkSet
}

func (r Resource) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// Relationship returns the relationship declared under name.
func (r Resource) Relationship(name string) (Relationship, bool) {
	for _, rel := range r.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relationship{}, false
}

func (r Resource) HasRelationship(name string) bool {
	_, ok := r.Relationship(name)
	return ok
}

// WithRelationship returns a copy of r where the relationship with the same name is replaced by rel.
func (r Resource) WithRelationship(rel Relationship) Resource {
	out := r
	out.Relationships = make([]Relationship, len(r.Relationships))
	copy(out.Relationships, r.Relationships)
	for i := range out.Relationships {
		if out.Relationships[i].Name == rel.Name {
			out.Relationships[i] = rel
			return out
		}
	}
	out.Relationships = append(out.Relationships, rel)
	return out
}

// MarshalJSON renders a format-neutral view of the resource, used for logging and the CLI.
func (r Resource) MarshalJSON() ([]byte, error) {
	type relView struct {
		Name        string   `json:"name"`
		TargetType  string   `json:"targetType,omitempty"`
		Cardinality string   `json:"cardinality"`
		IDs         []string `json:"ids"`
		Resolved    bool     `json:"resolved"`
		Loaded      bool     `json:"loaded"`
	}
	rels := make([]relView, 0, len(r.Relationships))
	for _, rel := range r.Relationships {
		ids := rel.IDs
		if ids == nil {
			ids = []string{}
		}
		rels = append(rels, relView{
			Name:        rel.Name,
			TargetType:  rel.TargetType,
			Cardinality: rel.Cardinality.String(),
			IDs:         ids,
			Resolved:    rel.Resolved,
			Loaded:      rel.Loaded(),
		})
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	var links *LinkSet
	if r.Links.Len() > 0 {
		links = &r.Links
	}

	return json.Marshal(struct {
		Type          string         `json:"type"`
		ID            string         `json:"id"`
		Attributes    map[string]any `json:"attributes"`
		Relationships []relView      `json:"relationships,omitempty"`
		Links         *LinkSet       `json:"links,omitempty"`
	}{r.Type, r.ID, attrs, rels, links})
}

// Relationship is a typed, named edge from a resource to one or more targets.
//
// A relationship is Resolved when its target ids are known (possibly none) and
// Loaded when the full target bodies are attached in Targets.
type Relationship struct {
	Name        string
	TargetType  string
	Cardinality Cardinality
	IDs         []string
	Resolved    bool
	Targets     []Resource
}

// HasOne declares a resolved to-one relationship. An empty id means "applicable, currently none".
func HasOne(name, targetType, id string) Relationship {
	ids := []string{}
	if id != "" {
		ids = append(ids, id)
	}
	return Relationship{Name: name, TargetType: targetType, Cardinality: One, IDs: ids, Resolved: true}
}

// HasMany declares a resolved to-many relationship.
func HasMany(name, targetType string, ids ...string) Relationship {
	cp := make([]string, len(ids))
	copy(cp, ids)
	return Relationship{Name: name, TargetType: targetType, Cardinality: Many, IDs: cp, Resolved: true}
}

// Unresolved declares a relationship whose targets are not known yet.
func Unresolved(name, targetType string, c Cardinality) Relationship {
	return Relationship{Name: name, TargetType: targetType, Cardinality: c}
}

// WithTargets attaches loaded target bodies. Target identifiers replace IDs and
// the relationship becomes resolved.
func (r Relationship) WithTargets(targets ...Resource) Relationship {
	out := r
	out.Targets = make([]Resource, len(targets))
	copy(out.Targets, targets)
	out.IDs = make([]string, 0, len(targets))
	for _, t := range targets {
		out.IDs = append(out.IDs, t.ID)
		if out.TargetType == "" {
			out.TargetType = t.Type
		}
	}
	out.Resolved = true
	return out
}

func (r Relationship) Loaded() bool {
	return r.Targets != nil
}

// Identifiers returns the target identifiers, or nil when the relationship is unresolved.
func (r Relationship) Identifiers() []Identifier {
	if !r.Resolved {
		return nil
	}
	ids := make([]Identifier, 0, len(r.IDs))
	for i, id := range r.IDs {
		typ := r.TargetType
		if i < len(r.Targets) && r.Targets[i].Type != "" {
			typ = r.Targets[i].Type
		}
		ids = append(ids, Identifier{Type: typ, ID: id})
	}
	return ids
}

// RelationDescriptor is the static description of a relationship a resource type declares.
type RelationDescriptor struct {
	Name        string      `json:"name"`
	TargetType  string      `json:"targetType"`
	Cardinality Cardinality `json:"cardinality"`
	Description string      `json:"description,omitempty"`
}

// Collection is one page of members of a to-many relationship, or of a whole type when Owner is nil.
type Collection struct {
	Owner      *Identifier
	Relation   string
	TargetType string
	Members    []Resource
}
