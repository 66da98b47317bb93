package sqlstore_test

import (
	"context"
	"testing"

	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
	"github.com/tailbits/hypermedia/store/sqlstore"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, sqlstore.SQLite, ":memory:")
	assert.NilError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := sqlstore.New(db, sqlstore.SQLite, nil)
	assert.NilError(t, store.Migrate(ctx))
	return store
}

func seed(t *testing.T, store *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()

	for _, sku := range []string{"a", "b", "c"} {
		assert.NilError(t, store.Put(ctx, model.MustNew("orderItem", sku, map[string]any{"sku": sku})))
	}
	assert.NilError(t, store.Put(ctx, model.MustNew("customer", "c1", map[string]any{"name": "Ada"})))
	assert.NilError(t, store.Put(ctx, model.MustNew("order", "1", map[string]any{"status": "open", "total": 42.5},
		model.HasOne("customer", "customer", "c1"),
		model.HasMany("items", "orderItem", "a", "b", "c"),
		model.Unresolved("invoice", "invoice", model.One),
	)))
}

func TestLoadResource(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	order, err := store.LoadResource(context.Background(), "order", "1")
	assert.NilError(t, err)

	assert.Equal(t, order.Attributes["status"], "open")
	assert.Equal(t, order.Attributes["total"], 42.5)
	assert.Assert(t, is.Len(order.Relationships, 3))

	customer := order.Relationships[0]
	assert.Equal(t, customer.Name, "customer")
	assert.Equal(t, customer.Cardinality, model.One)
	assert.Assert(t, customer.Resolved)
	assert.DeepEqual(t, customer.IDs, []string{"c1"})

	items := order.Relationships[1]
	assert.Equal(t, items.Cardinality, model.Many)
	assert.DeepEqual(t, items.IDs, []string{"a", "b", "c"})

	invoice := order.Relationships[2]
	assert.Assert(t, !invoice.Resolved)
	assert.Assert(t, is.Len(invoice.IDs, 0))
}

func TestLoadResourceNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.LoadResource(context.Background(), "order", "404")
	assert.ErrorIs(t, err, hypermedia.ErrNotFound)

	_, err = store.LoadRelated(context.Background(), "order", "404", "items")
	assert.ErrorIs(t, err, hypermedia.ErrNotFound)
}

func TestPutReplaces(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	assert.NilError(t, store.Put(ctx, model.MustNew("order", "1", map[string]any{"status": "cancelled"},
		model.HasMany("items", "orderItem", "c"),
	)))

	order, err := store.LoadResource(ctx, "order", "1")
	assert.NilError(t, err)
	assert.Equal(t, order.Attributes["status"], "cancelled")
	assert.Assert(t, is.Len(order.Relationships, 1))
	assert.DeepEqual(t, order.Relationships[0].IDs, []string{"c"})
}

func TestCreateDuplicate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	res := model.MustNew("customer", "c1", map[string]any{"name": "Ada"})
	assert.NilError(t, store.Create(ctx, res))
	assert.ErrorIs(t, store.Create(ctx, res), sqlstore.ErrDuplicate)
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	assert.NilError(t, store.Delete(ctx, "order", "1"))
	_, err := store.LoadResource(ctx, "order", "1")
	assert.ErrorIs(t, err, hypermedia.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "order", "1"), hypermedia.ErrNotFound)
}

func TestLoadRelated(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	items, err := store.LoadRelated(ctx, "order", "1", "items")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(items, 3))
	assert.Equal(t, items[0].ID, "a")
	assert.Equal(t, items[2].ID, "c")

	none, err := store.LoadRelated(ctx, "order", "1", "invoice")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(none, 0))
}

func TestLoadRelatedPage(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	page, next, err := store.LoadRelatedPage(ctx, "order", "1", "items", "", 2)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(page, 2))
	assert.Equal(t, page[1].ID, "b")
	assert.Equal(t, next, "2")

	page, next, err = store.LoadRelatedPage(ctx, "order", "1", "items", next, 2)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(page, 1))
	assert.Equal(t, page[0].ID, "c")
	assert.Equal(t, next, "")

	_, _, err = store.LoadRelatedPage(ctx, "order", "1", "items", "abc", 2)
	assert.ErrorIs(t, err, hypermedia.ErrInvalidCursor)
}

func TestStoreServesAPI(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	api := hypermedia.NewAPI(
		hypermedia.WithLoader(store),
		hypermedia.WithLinkContext(link.Context{BaseURL: "/api"}),
		hypermedia.WithDefaultPageSize(2),
	)
	hypermedia.Define("order").HasOne("customer", "customer").HasMany("items", "orderItem").Register(api)
	hypermedia.Define("customer").Register(api)
	hypermedia.Define("orderItem").Register(api)

	body, err := api.Render(context.Background(), "order", "1", codec.HAL, hypermedia.Embed("customer"))
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(string(body), `"_embedded":{"customer":{"name":"Ada"`))

	body, err = api.RenderRelated(context.Background(), "order", "1", "items", codec.JSONAPI)
	assert.NilError(t, err)
	doc, err := codec.DecodeCollection(body, codec.JSONAPI)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(doc.Members, 2))
	assert.Assert(t, doc.Links.Has("next"))
}
