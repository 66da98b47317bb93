package hypermedia_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const orderSchema = `{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["open", "cancelled"]},
		"total": {"type": "number"},
		"shipTo": {"$ref": "#/definitions/address"}
	},
	"required": ["status", "total"]
}`

const addressSchema = `{
	"type": "object",
	"properties": {
		"city": {"type": "string"}
	},
	"required": ["city"]
}`

// memLoader serves fixtures from maps.
type memLoader struct {
	resources map[model.Identifier]model.Resource
	related   map[string][]model.Resource
}

func (l *memLoader) LoadResource(_ context.Context, typ, id string) (model.Resource, error) {
	res, ok := l.resources[model.Identifier{Type: typ, ID: id}]
	if !ok {
		return model.Resource{}, hypermedia.ErrNotFound
	}
	return res, nil
}

func (l *memLoader) LoadRelated(_ context.Context, typ, id, relation string) ([]model.Resource, error) {
	return l.related[typ+"/"+id+"/"+relation], nil
}

// pagedLoader adds cursor paging that hands out one member per page.
type pagedLoader struct {
	*memLoader
	calls int
}

func (l *pagedLoader) LoadRelatedPage(ctx context.Context, typ, id, relation, cursor string, size int) ([]model.Resource, string, error) {
	l.calls++
	all, _ := l.LoadRelated(ctx, typ, id, relation)
	for i, res := range all {
		if cursor != "" && res.ID != cursor {
			continue
		}
		next := ""
		if i+1 < len(all) {
			next = all[i+1].ID
		}
		return all[i : i+1], next, nil
	}
	return []model.Resource{}, "", nil
}

func newLoader() *memLoader {
	items := []model.Resource{
		model.MustNew("orderItem", "a", map[string]any{"sku": "a"}),
		model.MustNew("orderItem", "b", map[string]any{"sku": "b"}),
		model.MustNew("orderItem", "c", map[string]any{"sku": "c"}),
	}
	order := model.MustNew("order", "1", map[string]any{"status": "open", "total": 42},
		model.HasOne("customer", "customer", "c1"),
		model.HasMany("items", "orderItem", "a", "b", "c"),
	)
	cancelled := model.MustNew("order", "2", map[string]any{"status": "cancelled", "total": 0},
		model.HasOne("customer", "customer", ""),
		model.HasMany("items", "orderItem"),
	)
	customer := model.MustNew("customer", "c1", map[string]any{"name": "Ada"})

	return &memLoader{
		resources: map[model.Identifier]model.Resource{
			order.Identifier():     order,
			cancelled.Identifier(): cancelled,
			customer.Identifier():  customer,
		},
		related: map[string][]model.Resource{
			"order/1/customer": {customer},
			"order/1/items":    items,
		},
	}
}

func newAPI(loader hypermedia.Loader, opts ...hypermedia.Option) *hypermedia.API {
	api := hypermedia.NewAPI(append([]hypermedia.Option{
		hypermedia.WithLoader(loader),
		hypermedia.WithLinkContext(link.Context{BaseURL: "/api"}),
	}, opts...)...)

	hypermedia.Define("address").
		WithSchema([]byte(addressSchema)).
		SkipIf(true).
		Register(api)

	hypermedia.Define("order").
		WithDesc("A customer order").
		WithTags("orders").
		WithSchema([]byte(orderSchema)).
		WithExample([]byte(`{"status":"open","total":42}`)).
		HasOne("customer", "customer").
		HasMany("items", "orderItem", "Line items of the order").
		WithAction("cancel", http.MethodPost, func(res model.Resource) bool {
			return res.Attributes["status"] != "cancelled"
		}).
		Register(api)

	hypermedia.Define("customer").WithTags("customers").Register(api)
	hypermedia.Define("orderItem").WithTags("orders").Register(api)

	return api
}

func render(t *testing.T, api *hypermedia.API, typ, id string, f codec.Format, opts ...hypermedia.RenderOption) string {
	t.Helper()
	body, err := api.Render(context.Background(), typ, id, f, opts...)
	assert.NilError(t, err)
	return string(body)
}

func TestRegister(t *testing.T) {
	api := newAPI(newLoader())

	assert.Assert(t, api.HasType("order"))
	assert.DeepEqual(t, api.RelationsOf("order"), []model.RelationDescriptor{
		{Name: "customer", TargetType: "customer", Cardinality: model.One},
		{Name: "items", TargetType: "orderItem", Cardinality: model.Many, Description: "Line items of the order"},
	})
	assert.Assert(t, is.Len(api.RelationsOf("unknown"), 0))

	names := make([]string, 0)
	for _, d := range api.Registry().TaggedTypes("orders") {
		names = append(names, d.Name)
	}
	assert.DeepEqual(t, names, []string{"order", "orderItem"})

	def, ok := api.GetType("order")
	assert.Assert(t, ok)
	assert.Equal(t, def.Description, "A customer order")
	assert.Equal(t, len(def.Actions), 1)

	address, _ := api.GetType("address")
	assert.Assert(t, address.Undocumented)
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name    string
		builder func() *hypermedia.TypeBuilder
		message string
	}{
		{
			name:    "empty name",
			builder: func() *hypermedia.TypeBuilder { return hypermedia.Define("") },
			message: "type name is required",
		},
		{
			name: "duplicate relation",
			builder: func() *hypermedia.TypeBuilder {
				return hypermedia.Define("invoice").HasOne("order", "order").HasMany("order", "order")
			},
			message: `relation "order" is declared twice`,
		},
		{
			name:    "self relation",
			builder: func() *hypermedia.TypeBuilder { return hypermedia.Define("invoice").HasOne("self", "invoice") },
			message: `relation "self" is declared twice or is reserved`,
		},
		{
			name: "action colliding with relation",
			builder: func() *hypermedia.TypeBuilder {
				return hypermedia.Define("invoice").HasOne("pay", "payment").WithAction("pay", http.MethodPost, nil)
			},
			message: `action "pay" collides with a relation`,
		},
		{
			name:    "unsupported action method",
			builder: func() *hypermedia.TypeBuilder { return hypermedia.Define("invoice").WithAction("pay", "TRACE", nil) },
			message: `unsupported method "TRACE"`,
		},
		{
			name:    "invalid schema",
			builder: func() *hypermedia.TypeBuilder { return hypermedia.Define("invoice").WithSchema([]byte(`{`)) },
			message: "schema is not valid JSON",
		},
		{
			name: "conflicting schema",
			builder: func() *hypermedia.TypeBuilder {
				return hypermedia.Define("address").WithSchema([]byte(`{"type":"string"}`))
			},
			message: "type address is already registered with a different schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newAPI(newLoader())
			msg := recoverPanic(func() { tt.builder().Register(api) })
			assert.Assert(t, is.Contains(msg, tt.message))
		})
	}
}

func TestEndpoints(t *testing.T) {
	api := newAPI(newLoader())

	endpoints := api.Registry().Endpoints("/api", strings.ToLower)
	assert.DeepEqual(t, endpoints, []string{
		"/api/address/{id}",
		"/api/customer/{id}",
		"/api/order/{id}",
		"/api/order/{id}/customer",
		"/api/order/{id}/items",
		"/api/orderitem/{id}",
	})
}

func TestTryRegister(t *testing.T) {
	api := newAPI(newLoader())

	err := hypermedia.Define("invoice").WithAction("pay", "TRACE", nil).TryRegister(api)
	assert.ErrorContains(t, err, `unsupported method "TRACE"`)
	assert.Assert(t, !api.HasType("invoice"))

	assert.NilError(t, hypermedia.Define("invoice").HasOne("order", "order").TryRegister(api))
	assert.Assert(t, api.HasType("invoice"))
}

func TestWithExtensionsPanics(t *testing.T) {
	msg := recoverPanic(func() { hypermedia.Define("invoice").WithExtensions("internal", true) })
	assert.Assert(t, is.Contains(msg, "custom keys must start with 'x-'"))
}

func recoverPanic(fn func()) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprint(r)
		}
	}()
	fn()
	return ""
}

func TestRender(t *testing.T) {
	api := newAPI(newLoader())

	assert.Equal(t, render(t, api, "order", "1", codec.HAL),
		`{"status":"open","total":42,"_links":{"self":{"href":"/api/order/1"},"customer":{"href":"/api/order/1/customer"},"items":{"href":"/api/order/1/items"},"cancel":{"href":"/api/order/1/cancel","method":"POST"}}}`)

	assert.Equal(t, render(t, api, "order", "2", codec.JSONAPI),
		`{"data":{"type":"order","id":"2","attributes":{"status":"cancelled","total":0},"relationships":{"customer":{"links":{"related":"/api/order/2/customer"},"data":null},"items":{"links":{"related":"/api/order/2/items"},"data":[]}}}}`)
}

func TestRenderEmbed(t *testing.T) {
	api := newAPI(newLoader())

	assert.Equal(t, render(t, api, "order", "1", codec.HAL, hypermedia.Embed("customer")),
		`{"status":"open","total":42,"_links":{"self":{"href":"/api/order/1"},"items":{"href":"/api/order/1/items"},"cancel":{"href":"/api/order/1/cancel","method":"POST"}},`+
			`"_embedded":{"customer":{"name":"Ada","_links":{"self":{"href":"/api/customer/c1"}}}}}`)

	assert.Equal(t, render(t, api, "order", "1", codec.HAL, hypermedia.Embed("customer"), hypermedia.LinkOnly("customer")),
		render(t, api, "order", "1", codec.HAL))
}

func TestRenderDefaultEmbedIsFiltered(t *testing.T) {
	api := newAPI(newLoader(), hypermedia.WithLinkContext(link.Context{BaseURL: "/api", Embed: []string{"customer", "invoice"}}))

	body := render(t, api, "order", "1", codec.JSONAPI)
	assert.Assert(t, is.Contains(body, `"included":[{"type":"customer","id":"c1","attributes":{"name":"Ada"},"links":{"self":"/api/customer/c1"}}]`))
}

func TestRenderErrors(t *testing.T) {
	api := newAPI(newLoader())

	_, err := api.Render(context.Background(), "order", "1", codec.HAL, hypermedia.Embed("invoice"))
	var unresolvable *model.UnresolvableRelationError
	assert.Assert(t, errors.As(err, &unresolvable))
	assert.Equal(t, unresolvable.Relation, "invoice")

	_, err = api.Render(context.Background(), "order", "404", codec.HAL)
	assert.Assert(t, errors.Is(err, hypermedia.ErrNotFound))

	_, err = api.Render(context.Background(), "invoice", "1", codec.HAL)
	var unknown *model.UnknownTypeError
	assert.Assert(t, errors.As(err, &unknown))

	_, err = hypermedia.NewAPI().Render(context.Background(), "order", "1", codec.HAL)
	assert.Assert(t, errors.Is(err, hypermedia.ErrNoLoader))
}

func TestRenderRelatedIgnoresNonPositivePageSize(t *testing.T) {
	api := newAPI(newLoader(), hypermedia.WithDefaultPageSize(0))
	ctx := context.Background()

	for _, opts := range [][]hypermedia.RenderOption{nil, {hypermedia.WithPageSize(-1)}} {
		body, err := api.RenderRelated(ctx, "order", "1", "items", codec.HAL, opts...)
		assert.NilError(t, err)

		doc, err := codec.DecodeCollection(body, codec.HAL)
		assert.NilError(t, err)
		assert.Assert(t, is.Len(doc.Members, 3))
		assert.Assert(t, !doc.Links.Has("next"))
	}
	assert.Equal(t, hypermedia.StatusOf(hypermedia.ErrInvalidPageSize), http.StatusBadRequest)
}

func TestRenderRelatedInMemory(t *testing.T) {
	api := newAPI(newLoader())
	ctx := context.Background()

	body, err := api.RenderRelated(ctx, "order", "1", "items", codec.HAL, hypermedia.WithPageSize(2))
	assert.NilError(t, err)
	assert.Equal(t, string(body),
		`{"_links":{"self":{"href":"/api/order/1/items?limit=2"},"first":{"href":"/api/order/1/items?limit=2"},"next":{"href":"/api/order/1/items?cursor=2&limit=2"},"last":{"href":"/api/order/1/items?cursor=2&limit=2"}},`+
			`"_embedded":{"items":[{"sku":"a","_links":{"self":{"href":"/api/orderItem/a"}}},{"sku":"b","_links":{"self":{"href":"/api/orderItem/b"}}}]}}`)

	body, err = api.RenderRelated(ctx, "order", "1", "items", codec.JSONAPI, hypermedia.WithPageSize(2), hypermedia.WithCursor("2"))
	assert.NilError(t, err)
	assert.Equal(t, string(body),
		`{"data":[{"type":"orderItem","id":"c","attributes":{"sku":"c"},"links":{"self":"/api/orderItem/c"}}],`+
			`"links":{"self":"/api/order/1/items?cursor=2&limit=2","first":"/api/order/1/items?limit=2","prev":"/api/order/1/items?limit=2","last":"/api/order/1/items?cursor=2&limit=2"}}`)

	_, err = api.RenderRelated(ctx, "order", "1", "items", codec.HAL, hypermedia.WithCursor("x"))
	assert.Assert(t, errors.Is(err, hypermedia.ErrInvalidCursor))

	_, err = api.RenderRelated(ctx, "order", "1", "invoices", codec.HAL)
	var notFound *model.RelationNotFoundError
	assert.Assert(t, errors.As(err, &notFound))
}

func TestRenderRelatedPageLoader(t *testing.T) {
	loader := &pagedLoader{memLoader: newLoader()}
	api := newAPI(loader)

	body, err := api.RenderRelated(context.Background(), "order", "1", "items", codec.HAL, hypermedia.WithPageSize(1), hypermedia.WithCursor("b"))
	assert.NilError(t, err)
	assert.Equal(t, loader.calls, 1)

	doc, err := codec.DecodeCollection(body, codec.HAL)
	assert.NilError(t, err)
	assert.Equal(t, len(doc.Members), 1)
	assert.Equal(t, doc.Members[0].ID, "b")
	next, ok := doc.Links.First("next")
	assert.Assert(t, ok)
	assert.Equal(t, next.Href, "/api/order/1/items?cursor=c&limit=1")
	assert.Assert(t, doc.Links.Has("prev"))
}

type order struct {
	Status string   `json:"status"`
	Total  float64  `json:"total"`
	ShipTo *address `json:"shipTo,omitempty"`
}

type address struct {
	City string `json:"city"`
}

func TestBind(t *testing.T) {
	api := newAPI(newLoader())

	res := model.MustNew("order", "9", map[string]any{"status": "open", "total": 12.5, "shipTo": map[string]any{"city": "Oslo"}})
	got, err := hypermedia.Bind[order](api, res)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, order{Status: "open", Total: 12.5, ShipTo: &address{City: "Oslo"}})

	ptr, err := hypermedia.Bind[*order](api, res)
	assert.NilError(t, err)
	assert.Equal(t, ptr.ShipTo.City, "Oslo")

	invalid := model.MustNew("order", "9", map[string]any{"status": "lost", "shipTo": map[string]any{}})
	_, err = hypermedia.Bind[order](api, invalid)
	assert.Assert(t, model.IsValidationError(err))
	assert.ErrorContains(t, err, "Field 'total' is missing")
	assert.ErrorContains(t, err, "Field 'city' is missing")

	_, err = hypermedia.Bind[order](api, model.MustNew("invoice", "1", nil))
	var unknown *model.UnknownTypeError
	assert.Assert(t, errors.As(err, &unknown))
}

func TestDereferenceSchema(t *testing.T) {
	api := newAPI(newLoader())

	def, _ := api.GetType("order")
	out, err := api.DereferenceSchema(def.Schema)
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(string(out), `"definitions":{"address":`))

	_, err = api.DereferenceSchema([]byte(`{"$ref":"#/definitions/missing"}`))
	assert.ErrorContains(t, err, "type missing not found")
}

func TestRelationsOfServesAsTypeHints(t *testing.T) {
	api := newAPI(newLoader())
	body := render(t, api, "order", "1", codec.HAL)

	res, _, err := codec.Decode([]byte(body), codec.HAL, codec.WithTypeHints(api))
	assert.NilError(t, err)
	rel, ok := res.Relationship("items")
	assert.Assert(t, ok)
	assert.Equal(t, rel.Cardinality, model.Many)
	assert.Assert(t, !rel.Resolved)
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   codec.Format
	}{
		{accept: "", want: codec.HAL},
		{accept: "*/*", want: codec.HAL},
		{accept: "application/json", want: codec.HAL},
		{accept: codec.JSONAPIMediaType, want: codec.JSONAPI},
		{accept: "application/hal+json;q=0.5, application/vnd.api+json", want: codec.JSONAPI},
		{accept: "text/html, application/hal+json;q=0.1", want: codec.HAL},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			got, err := hypermedia.Negotiate(tt.accept)
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}

	_, err := hypermedia.Negotiate("text/html")
	var unsupported *model.UnsupportedFormatError
	assert.Assert(t, errors.As(err, &unsupported))
}

func TestServeResource(t *testing.T) {
	api := newAPI(newLoader())
	rsp := hypermedia.NewHTTPResponder(nil)

	t.Run("hal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/1?embed=customer", nil)
		rec := httptest.NewRecorder()
		api.ServeResource(rec, req, rsp, "order", "1")

		assert.Equal(t, rec.Code, http.StatusOK)
		assert.Equal(t, rec.Header().Get("Content-Type"), codec.HALMediaType)
		assert.Assert(t, is.Contains(rec.Body.String(), `"_embedded":{"customer":`))
	})

	t.Run("jsonapi not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/404", nil)
		req.Header.Set("Accept", codec.JSONAPIMediaType)
		rec := httptest.NewRecorder()
		api.ServeResource(rec, req, rsp, "order", "404")

		assert.Equal(t, rec.Code, http.StatusNotFound)
		assert.Equal(t, rec.Header().Get("Content-Type"), codec.JSONAPIMediaType)
		assert.Equal(t, rec.Body.String(), `{"errors":[{"status":"404","title":"Not Found","detail":"load order/404: not found"}]}`)
	})

	t.Run("unknown embed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/1?embed=invoice", nil)
		rec := httptest.NewRecorder()
		api.ServeResource(rec, req, rsp, "order", "1")

		assert.Equal(t, rec.Code, http.StatusBadRequest)
		assert.Equal(t, rec.Header().Get("Content-Type"), hypermedia.ProblemMediaType)
		assert.Assert(t, strings.HasPrefix(rec.Body.String(), `{"detail":"cannot embed relation \"invoice\"`))
	})

	t.Run("not acceptable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/1", nil)
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		api.ServeResource(rec, req, rsp, "order", "1")

		assert.Equal(t, rec.Code, http.StatusNotAcceptable)
	})
}

func TestServeRelated(t *testing.T) {
	api := newAPI(newLoader())
	rsp := hypermedia.NewHTTPResponder(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/order/1/items?cursor=1&limit=1", nil)
	rec := httptest.NewRecorder()
	api.ServeRelated(rec, req, rsp, "order", "1", "items")

	assert.Equal(t, rec.Code, http.StatusOK)
	doc, err := codec.DecodeCollection(rec.Body.Bytes(), codec.HAL)
	assert.NilError(t, err)
	assert.Equal(t, len(doc.Members), 1)
	assert.Equal(t, doc.Members[0].ID, "b")
}

func TestRenderTarget(t *testing.T) {
	api := newAPI(newLoader())
	ctx := context.Background()

	body, err := api.RenderTarget(ctx, "order", "1", "customer", codec.HAL)
	assert.NilError(t, err)
	assert.Equal(t, string(body), render(t, api, "customer", "c1", codec.HAL))

	_, err = api.RenderTarget(ctx, "order", "2", "customer", codec.HAL)
	assert.Assert(t, errors.Is(err, hypermedia.ErrNotFound))

	_, err = api.RenderTarget(ctx, "order", "1", "items", codec.HAL)
	assert.Assert(t, errors.Is(err, hypermedia.ErrNotFound))
}

func TestServeRelatedToOne(t *testing.T) {
	api := newAPI(newLoader())
	rsp := hypermedia.NewHTTPResponder(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/order/1/customer", nil)
	req.Header.Set("Accept", codec.JSONAPIMediaType)
	rec := httptest.NewRecorder()
	api.ServeRelated(rec, req, rsp, "order", "1", "customer")

	assert.Equal(t, rec.Code, http.StatusOK)
	res, _, err := codec.Decode(rec.Body.Bytes(), codec.JSONAPI)
	assert.NilError(t, err)
	assert.Equal(t, res.Identifier(), model.Identifier{Type: "customer", ID: "c1"})
	assert.Equal(t, res.Attributes["name"], "Ada")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, hypermedia.StatusOf(model.NewValidationError([]string{"bad"})), http.StatusUnprocessableEntity)
	assert.Equal(t, hypermedia.StatusOf(fmt.Errorf("wrapped: %w", hypermedia.ErrNotFound)), http.StatusNotFound)
	assert.Equal(t, hypermedia.StatusOf(errors.New("boom")), http.StatusInternalServerError)
}
