package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tailbits/hypermedia/model"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestNew(t *testing.T) {
	attrs := map[string]any{"total": 42}
	res, err := model.New("order", "1", attrs, model.HasMany("items", "orderItem", "a", "b"))
	assert.NilError(t, err)

	attrs["total"] = 0
	assert.Equal(t, res.Attributes["total"], 42)
	assert.DeepEqual(t, res.Identifier(), model.Identifier{Type: "order", ID: "1"})

	items, ok := res.Relationship("items")
	assert.Assert(t, ok)
	assert.Equal(t, items.Cardinality, model.Many)
	assert.DeepEqual(t, items.IDs, []string{"a", "b"})
	assert.Assert(t, items.Resolved)
	assert.Assert(t, !items.Loaded())
}

func TestNewNilAttributes(t *testing.T) {
	res, err := model.New("order", "1", nil)
	assert.NilError(t, err)
	assert.Assert(t, res.Attributes != nil)
	assert.Equal(t, len(res.Attributes), 0)
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		id     string
		rels   []model.Relationship
		reason string
	}{
		{name: "empty type", id: "1", reason: "type is empty"},
		{name: "empty id", typ: "order", reason: "id is empty"},
		{
			name:   "duplicate relation",
			typ:    "order",
			id:     "1",
			rels:   []model.Relationship{model.HasOne("customer", "customer", "c"), model.HasMany("customer", "customer")},
			reason: "duplicate relationship name",
		},
		{
			name:   "reserved relation",
			typ:    "order",
			id:     "1",
			rels:   []model.Relationship{model.HasOne("self", "order", "1")},
			reason: "relationship name is reserved",
		},
		{
			name:   "to-one with many ids",
			typ:    "order",
			id:     "1",
			rels:   []model.Relationship{{Name: "customer", TargetType: "customer", Cardinality: model.One, IDs: []string{"a", "b"}, Resolved: true}},
			reason: "to-one relationship has more than one target",
		},
		{
			name:   "missing target type",
			typ:    "order",
			id:     "1",
			rels:   []model.Relationship{model.HasMany("items", "")},
			reason: "relationship target type is empty",
		},
		{
			name:   "unknown cardinality",
			typ:    "order",
			id:     "1",
			rels:   []model.Relationship{{Name: "items", TargetType: "orderItem"}},
			reason: "relationship cardinality is unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.New(tt.typ, tt.id, nil, tt.rels...)

			var target *model.InvalidResourceError
			assert.Assert(t, errors.As(err, &target))
			assert.Equal(t, target.Reason, tt.reason)
			assert.Equal(t, target.Type, tt.typ)
		})
	}
}

func TestRelationshipStates(t *testing.T) {
	empty := model.HasOne("customer", "customer", "")
	assert.Assert(t, empty.Resolved)
	assert.DeepEqual(t, empty.IDs, []string{})

	unresolved := model.Unresolved("customer", "customer", model.One)
	assert.Assert(t, !unresolved.Resolved)
	assert.Assert(t, unresolved.Identifiers() == nil)

	loaded := model.HasMany("items", "orderItem").WithTargets(model.MustNew("orderItem", "a", nil))
	assert.Assert(t, loaded.Loaded())
	assert.DeepEqual(t, loaded.Identifiers(), []model.Identifier{{Type: "orderItem", ID: "a"}})
}

func TestWithRelationship(t *testing.T) {
	res := model.MustNew("order", "1", nil, model.Unresolved("customer", "customer", model.One))
	updated := res.WithRelationship(model.HasOne("customer", "customer", "c1"))

	rel, _ := res.Relationship("customer")
	assert.Assert(t, !rel.Resolved)

	rel, _ = updated.Relationship("customer")
	assert.DeepEqual(t, rel.IDs, []string{"c1"})
	assert.Equal(t, len(updated.Relationships), 1)
}

func TestCardinalityText(t *testing.T) {
	b, err := json.Marshal(map[string]model.Cardinality{"c": model.Many})
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"c":"many"}`)

	var c model.Cardinality
	assert.NilError(t, c.UnmarshalText([]byte("one")))
	assert.Equal(t, c, model.One)
	assert.ErrorContains(t, c.UnmarshalText([]byte("some")), `unknown cardinality "some"`)
}

func TestLinkSet(t *testing.T) {
	b := model.NewLinkSetBuilder().
		Add("self", model.Link{Href: "/api/order/1"}).
		Add("alternate", model.Link{Href: "/a", Type: "text/html"}).
		Add("alternate", model.Link{Href: "/b"})
	set := b.Build()

	b.Add("late", model.Link{Href: "/late"})
	assert.Assert(t, !set.Has("late"))

	got, err := json.Marshal(set)
	assert.NilError(t, err)
	assert.Equal(t, string(got), `{"self":{"href":"/api/order/1"},"alternate":[{"href":"/a","type":"text/html"},{"href":"/b"}]}`)

	first, ok := set.First("alternate")
	assert.Assert(t, ok)
	assert.Equal(t, first.Href, "/a")
	assert.Assert(t, set.Equal(set))
	assert.Assert(t, !set.Equal(model.LinkSet{}))
}

func TestResourceMarshalJSON(t *testing.T) {
	res := model.MustNew("order", "1", map[string]any{"total": 42}, model.HasMany("items", "orderItem", "a"))
	b, err := json.Marshal(res)
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"type":"order","id":"1","attributes":{"total":42},"relationships":[{"name":"items","targetType":"orderItem","cardinality":"many","ids":["a"],"resolved":true,"loaded":false}]}`)
}

func TestValidate(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"total":{"type":"number"}},"required":["total"],"additionalProperties":false}`)

	assert.NilError(t, model.Validate(schema, []byte(`{"total":42}`)))

	err := model.Validate(schema, []byte(`{"totl":42}`))
	assert.Assert(t, model.IsValidationError(err))

	var verr model.ValidationError
	assert.Assert(t, errors.As(err, &verr))
	msgs := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		msgs = append(msgs, fe.Message)
	}
	assert.DeepEqual(t, msgs, []string{
		"Field '(root)' doesn't allow key: totl",
		"Field 'total' is missing",
	})

	err = model.Validate(schema, nil)
	assert.Assert(t, errors.Is(err, model.ErrBodyEmpty))
	assert.Check(t, is.ErrorContains(err, "body is empty"))
}
