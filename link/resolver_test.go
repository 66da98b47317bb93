package link_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"testing"

	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
	"gotest.tools/v3/assert"
)

func order(rels ...model.Relationship) model.Resource {
	return model.MustNew("order", "1", map[string]any{"total": 42}, rels...)
}

func marshal(t *testing.T, s model.LinkSet) string {
	t.Helper()
	b, err := json.Marshal(s)
	assert.NilError(t, err)
	return string(b)
}

func TestResolve(t *testing.T) {
	item := func(id string) model.Resource {
		return model.MustNew("orderItem", id, map[string]any{"sku": id}, model.HasOne("product", "product", "p-"+id))
	}
	loaded := model.HasMany("items", "orderItem").WithTargets(item("a"), item("b"))

	tests := []struct {
		name     string
		res      model.Resource
		ctx      link.Context
		want     string
		embedded []string
	}{
		{
			name: "self and related",
			res:  order(model.HasMany("items", "orderItem", "a", "b")),
			ctx:  link.Context{BaseURL: "/api"},
			want: `{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"}}`,
		},
		{
			name: "trailing slash in base",
			res:  order(),
			ctx:  link.Context{BaseURL: "https://example.com/api/"},
			want: `{"self":{"href":"https://example.com/api/order/1"}}`,
		},
		{
			name: "zero targets still linked",
			res:  order(model.HasMany("items", "orderItem")),
			ctx:  link.Context{BaseURL: "/api"},
			want: `{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"}}`,
		},
		{
			name: "embed needs loaded targets",
			res:  order(model.HasMany("items", "orderItem", "a")),
			ctx:  link.Context{BaseURL: "/api", Embed: []string{"items"}},
			want: `{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"}}`,
		},
		{
			name:     "embed loaded targets",
			res:      order(loaded),
			ctx:      link.Context{BaseURL: "/api", Embed: []string{"items"}},
			want:     `{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"}}`,
			embedded: []string{"items"},
		},
		{
			name: "link only wins over embed",
			res:  order(loaded),
			ctx:  link.Context{BaseURL: "/api", Embed: []string{"items"}, LinkOnly: []string{"items"}},
			want: `{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"}}`,
		},
		{
			name: "escaped segments",
			res:  model.MustNew("order", "a/b c", nil),
			ctx:  link.Context{BaseURL: "/api"},
			want: `{"self":{"href":"/api/order/a%2Fb%20c"}}`,
		},
		{
			name: "actions",
			res:  order(),
			ctx: link.Context{BaseURL: "/api", Actions: []link.Action{
				{Name: "cancel", Method: http.MethodPost},
				{Name: "refund", Method: http.MethodPost, Allowed: func(model.Resource) bool { return false }},
			}},
			want: `{"self":{"href":"/api/order/1"},"cancel":{"href":"/api/order/1/cancel","method":"POST"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := link.Resolve(tt.res, tt.ctx)
			assert.NilError(t, err)
			assert.Equal(t, marshal(t, got), tt.want)

			for _, rel := range got.Rels() {
				assert.Equal(t, got.Embedded(rel), slices.Contains(tt.embedded, rel), rel)
			}
		})
	}
}

func TestResolveNestedLinkSets(t *testing.T) {
	product := model.MustNew("product", "p1", nil)
	item := model.MustNew("orderItem", "a", nil, model.HasOne("product", "product", "").WithTargets(product))
	res := order(model.HasMany("items", "orderItem").WithTargets(item))

	_, err := link.Resolve(res, link.Context{BaseURL: "/api", Embed: []string{"items", "product"}})
	// product is not declared on the order itself.
	var unresolvable *model.UnresolvableRelationError
	assert.Assert(t, errors.As(err, &unresolvable))
	assert.Equal(t, unresolvable.Relation, "product")

	got, err := link.Resolve(res, link.Context{BaseURL: "/api", Embed: []string{"items"}})
	assert.NilError(t, err)

	nested := got.Nested("items")
	assert.Equal(t, len(nested), 1)
	assert.Equal(t, marshal(t, nested[0]), `{"self":{"href":"/api/orderItem/a"},"product":{"href":"/api/orderItem/a/product"}}`)
	assert.Assert(t, !nested[0].Embedded("product"))
}

func TestResolveUnresolvableRelation(t *testing.T) {
	_, err := link.Resolve(order(), link.Context{BaseURL: "/api", Embed: []string{"customer"}})

	var target *model.UnresolvableRelationError
	assert.Assert(t, errors.As(err, &target))
	assert.DeepEqual(t, *target, model.UnresolvableRelationError{Type: "order", ID: "1", Relation: "customer"})
	assert.ErrorContains(t, err, `"customer"`)
}

func TestResolveIsDeterministic(t *testing.T) {
	res := order(
		model.HasMany("items", "orderItem", "a", "b"),
		model.HasOne("customer", "customer", "c1"),
		model.Unresolved("invoice", "invoice", model.One),
	)
	ctx := link.Context{BaseURL: "/api", Actions: []link.Action{{Name: "cancel", Method: http.MethodPost}}}

	first, err := link.Resolve(res, ctx)
	assert.NilError(t, err)
	for range 20 {
		again, err := link.Resolve(res, ctx)
		assert.NilError(t, err)
		assert.Assert(t, first.Equal(again))
		assert.Equal(t, marshal(t, again), marshal(t, first))
	}
	assert.DeepEqual(t, first.Rels(), []string{"self", "items", "customer", "invoice", "cancel"})
}

func TestResolveCollection(t *testing.T) {
	owner := model.Identifier{Type: "order", ID: "1"}
	members := []model.Resource{
		model.MustNew("orderItem", "a", nil),
		model.MustNew("orderItem", "b", nil),
	}

	tests := []struct {
		name string
		c    model.Collection
		ctx  link.Context
		want string
	}{
		{
			name: "no paging",
			c:    model.Collection{TargetType: "order"},
			ctx:  link.Context{BaseURL: "/api"},
			want: `{"self":{"href":"/api/order"}}`,
		},
		{
			name: "first page",
			c:    model.Collection{Owner: &owner, Relation: "items", Members: members},
			ctx:  link.Context{BaseURL: "/api", Page: &link.Page{Size: 2, Next: "2"}},
			want: `{"self":{"href":"/api/order/1/items?limit=2"},"first":{"href":"/api/order/1/items?limit=2"},"next":{"href":"/api/order/1/items?cursor=2&limit=2"}}`,
		},
		{
			name: "last page with custom names",
			c:    model.Collection{Owner: &owner, Relation: "items", Members: members},
			ctx: link.Context{BaseURL: "/api", Page: &link.Page{Cursor: "4", Size: 2, HasPrev: true, Prev: "2", Last: "4"}, PageRels: link.PageRels{
				Next: "older", Prev: "newer", CursorParam: "after", SizeParam: "page[size]",
			}},
			want: `{"self":{"href":"/api/order/1/items?after=4&page%5Bsize%5D=2"},"first":{"href":"/api/order/1/items?page%5Bsize%5D=2"},"newer":{"href":"/api/order/1/items?after=2&page%5Bsize%5D=2"},"last":{"href":"/api/order/1/items?after=4&page%5Bsize%5D=2"}}`,
		},
		{
			name: "second page points back to first",
			c:    model.Collection{Owner: &owner, Relation: "items"},
			ctx:  link.Context{BaseURL: "/api", Page: &link.Page{Cursor: "2", Size: 2, HasPrev: true}},
			want: `{"self":{"href":"/api/order/1/items?cursor=2&limit=2"},"first":{"href":"/api/order/1/items?limit=2"},"prev":{"href":"/api/order/1/items?limit=2"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, memberLinks, err := link.ResolveCollection(tt.c, tt.ctx)
			assert.NilError(t, err)
			assert.Equal(t, marshal(t, page), tt.want)
			assert.Equal(t, len(memberLinks), len(tt.c.Members))
			for i, m := range tt.c.Members {
				self, ok := memberLinks[i].First(model.SelfRel)
				assert.Assert(t, ok)
				assert.Equal(t, self.Href, link.SelfHref("/api", m.Type, m.ID))
			}
		})
	}
}

func TestResolveCollectionInvalid(t *testing.T) {
	_, _, err := link.ResolveCollection(model.Collection{}, link.Context{})
	var invalid *model.InvalidResourceError
	assert.Assert(t, errors.As(err, &invalid))
}

func TestParseQuery(t *testing.T) {
	rels := link.PageRels{}
	cursor, size := rels.ParseQuery(url.Values{"cursor": {"abc"}, "limit": {"5"}}, 20)
	assert.Equal(t, cursor, "abc")
	assert.Equal(t, size, 5)

	_, size = rels.ParseQuery(url.Values{"limit": {"-1"}}, 20)
	assert.Equal(t, size, 20)
}
