package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
	"github.com/tailbits/hypermedia/openapi"
	"github.com/tailbits/hypermedia/store/sqlstore"
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
		"street": {"type": "string"},
		"city": {"type": "string"}
	},
	"required": ["city"]
}`

// Order is the typed view of the attributes of an order.
type Order struct {
	Status string   `json:"status"`
	Total  float64  `json:"total"`
	ShipTo *Address `json:"shipTo,omitempty"`
}

type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city"`
}

func register(api *hypermedia.API) {
	hypermedia.Define("address").WithSchema([]byte(addressSchema)).SkipIf(true).Register(api)
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
}

func seed(ctx context.Context, store *sqlstore.Store) (string, error) {
	customerID := uuid.NewString()
	if err := store.Put(ctx, model.MustNew("customer", customerID, map[string]any{"name": "Ada"})); err != nil {
		return "", err
	}

	var itemIDs []string
	for _, sku := range []string{"apple", "pear", "plum"} {
		id := uuid.NewString()
		if err := store.Put(ctx, model.MustNew("orderItem", id, map[string]any{"sku": sku, "quantity": 1})); err != nil {
			return "", err
		}
		itemIDs = append(itemIDs, id)
	}

	orderID := uuid.NewString()
	order := model.MustNew("order", orderID,
		map[string]any{"status": "open", "total": 42, "shipTo": map[string]any{"city": "London"}},
		model.HasOne("customer", "customer", customerID),
		model.HasMany("items", "orderItem", itemIDs...),
	)
	return orderID, store.Put(ctx, order)
}

// cancel is the handler of the cancel action of orders.
func cancel(api *hypermedia.API, store *sqlstore.Store) http.HandlerFunc {
	rsp := hypermedia.NewHTTPResponder(nil)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		f, err := hypermedia.Negotiate(r.Header.Get("Accept"))
		if err != nil {
			_ = rsp.RespondError(ctx, w, err, nil)
			return
		}

		res, err := store.LoadResource(ctx, "order", chi.URLParam(r, "id"))
		if err != nil {
			_ = rsp.RespondError(ctx, w, err, f)
			return
		}
		order, err := hypermedia.Bind[Order](api, res)
		if err != nil {
			_ = rsp.RespondError(ctx, w, err, f)
			return
		}

		order.Status = "cancelled"
		res.Attributes["status"] = order.Status
		if err := store.Put(ctx, res); err != nil {
			_ = rsp.RespondError(ctx, w, err, f)
			return
		}

		body, err := api.Render(ctx, "order", res.ID, f)
		if err != nil {
			_ = rsp.RespondError(ctx, w, err, f)
			return
		}
		_ = rsp.Respond(ctx, w, body, f, hypermedia.ActionStatus(http.MethodPost))
	}
}

func main() {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := sqlstore.Open(ctx, sqlstore.SQLite, ":memory:")
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := sqlstore.New(db, sqlstore.SQLite, log)
	if err := store.Migrate(ctx); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	api := hypermedia.NewAPI(
		hypermedia.WithLoader(store),
		hypermedia.WithLinkContext(link.Context{BaseURL: "http://localhost:9090/api"}),
		hypermedia.WithDefaultPageSize(2),
		hypermedia.WithLogger(log),
	)
	register(api)

	orderID, err := seed(ctx, store)
	if err != nil {
		log.Error("seed", "error", err)
		os.Exit(1)
	}

	gen, err := openapi.NewGenerator(api, openapi.WithInfo("Orders", "1.0.0", "An example order API"))
	if err != nil {
		log.Error("openapi", "error", err)
		os.Exit(1)
	}
	doc, err := gen.Schema()
	if err != nil {
		log.Error("openapi", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/order/{id}/cancel", cancel(api, store))
		r.Mount("/", api.Routes(nil))
	})

	log.Info("serving orders", "addr", ":9090", "order", "http://localhost:9090/api/order/"+orderID)
	if err := http.ListenAndServe(":9090", r); err != nil {
		log.Error("listen", "error", err)
		os.Exit(1)
	}
}
