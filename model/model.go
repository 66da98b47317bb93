// Package model contains the format-neutral resource model shared by the
// resolver, the codecs and the traversal client.
package model

import (
	"maps"
	"slices"
	"strconv"
)

// SelfRel is the reserved relation name of a resource's own link.
const SelfRel = "self"

// ReservedAttributes cannot be used as attribute names since HAL uses them for controls.
var ReservedAttributes = []string{"_links", "_embedded"}

// New builds a Resource. It has no side effects; attributes and relationships
// are copied so later changes by the caller are not observed.
func New(typ, id string, attributes map[string]any, relationships ...Relationship) (Resource, error) {
	if typ == "" {
		return Resource{}, &InvalidResourceError{Type: typ, ID: id, Reason: "type is empty"}
	}
	if id == "" {
		return Resource{}, &InvalidResourceError{Type: typ, ID: id, Reason: "id is empty"}
	}

	seen := make(map[string]bool, len(relationships))
	rels := make([]Relationship, 0, len(relationships))
	for _, rel := range relationships {
		switch {
		case rel.Name == "":
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Reason: "relationship name is empty"}
		case rel.Name == SelfRel:
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "relationship name is reserved"}
		case seen[rel.Name]:
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "duplicate relationship name"}
		case rel.TargetType == "":
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "relationship target type is empty"}
		case rel.Cardinality != One && rel.Cardinality != Many:
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "relationship cardinality is unknown"}
		case rel.Cardinality == One && len(rel.IDs) > 1:
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "to-one relationship has more than one target"}
		case rel.Loaded() && len(rel.Targets) != len(rel.IDs):
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Relation: rel.Name, Reason: "loaded targets do not match target ids"}
		}
		seen[rel.Name] = true

		cp := rel
		if rel.IDs != nil {
			cp.IDs = append([]string{}, rel.IDs...)
		}
		if rel.Targets != nil {
			cp.Targets = append([]Resource{}, rel.Targets...)
		}
		rels = append(rels, cp)
	}

	for key := range attributes {
		if slices.Contains(ReservedAttributes, key) {
			return Resource{}, &InvalidResourceError{Type: typ, ID: id, Reason: "attribute " + strconv.Quote(key) + " is reserved"}
		}
	}
	attrs := make(map[string]any, len(attributes))
	maps.Copy(attrs, attributes)

	return Resource{
		Type:          typ,
		ID:            id,
		Attributes:    attrs,
		Relationships: rels,
	}, nil
}

// MustNew is like New but panics on invalid input. It is meant for fixtures and examples.
func MustNew(typ, id string, attributes map[string]any, relationships ...Relationship) Resource {
	res, err := New(typ, id, attributes, relationships...)
	if err != nil {
		panic(err)
	}
	return res
}
