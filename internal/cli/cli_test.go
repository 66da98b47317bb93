package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tailbits/hypermedia/config"
	"github.com/tailbits/hypermedia/model"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const orderSchema = `{
	"type": "object",
	"properties": {"status": {"type": "string"}},
	"required": ["status"]
}`

const configTemplate = `
server:
  base_url: %s
  log_level: error
database:
  dialect: sqlite
  dsn: %q
render:
  page_size: 2
client:
  retry_max: 0
types:
  - name: order
    description: A customer order
    tags: [orders]
    schema: %s
    relations:
      - name: customer
        target: customer
        cardinality: one
      - name: items
        target: orderItem
        cardinality: many
    actions:
      - name: cancel
        method: POST
  - name: customer
  - name: orderItem
`

func writeConfig(t *testing.T, baseURL, dsn string) string {
	t.Helper()
	dir := t.TempDir()

	schemaPath := filepath.Join(dir, "order.json")
	assert.NilError(t, os.WriteFile(schemaPath, []byte(orderSchema), 0o600))

	path := filepath.Join(dir, "hyperctl.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, baseURL, dsn, schemaPath)), 0o600))
	return path
}

func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// startServer serves seeded orders the way the serve command does and
// returns the API base URL and the config file pointing at it.
func startServer(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()

	srv := httptest.NewUnstartedServer(nil)
	base := "http://" + srv.Listener.Addr().String() + "/api"
	path := writeConfig(t, base, ":memory:")

	cfg, err := config.Load(path)
	assert.NilError(t, err)
	a := &app{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	db, store, err := a.openStore(ctx)
	assert.NilError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.NilError(t, store.Migrate(ctx))

	for _, sku := range []string{"a", "b", "c"} {
		assert.NilError(t, store.Put(ctx, model.MustNew("orderItem", sku, map[string]any{"sku": sku})))
	}
	assert.NilError(t, store.Put(ctx, model.MustNew("customer", "c1", map[string]any{"name": "Ada"})))
	assert.NilError(t, store.Put(ctx, model.MustNew("order", "1", map[string]any{"status": "open"},
		model.HasOne("customer", "customer", "c1"),
		model.HasMany("items", "orderItem", "a", "b", "c"),
	)))

	api, err := a.newAPI(store)
	assert.NilError(t, err)
	handler, err := a.router(api)
	assert.NilError(t, err)

	srv.Config.Handler = handler
	srv.Start()
	t.Cleanup(srv.Close)
	return base, path
}

func lines(out string) []string {
	return strings.Split(strings.TrimSpace(out), "\n")
}

func TestRouter(t *testing.T) {
	base, _ := startServer(t)
	root := strings.TrimSuffix(base, "/api")

	resp, err := http.Get(base + "/order/1")
	assert.NilError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Content-Type"), "application/hal+json")
	assert.Assert(t, is.Contains(string(body), `"cancel":{"href":"`+base+`/order/1/cancel","method":"POST"}`))

	resp, err = http.Get(root + "/openapi.json")
	assert.NilError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Assert(t, is.Contains(string(body), `"/order/{id}/items"`))

	resp, err = http.Get(root + "/health")
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestFollowToOne(t *testing.T) {
	base, path := startServer(t)

	out, err := run(t, nil, "--config", path, "follow", base+"/order/1", "customer")
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(out, `"type":"customer","id":"c1"`))
	assert.Assert(t, is.Contains(out, `"name":"Ada"`))
}

func TestFollowWalksCollection(t *testing.T) {
	base, path := startServer(t)

	out, err := run(t, nil, "--config", path, "follow", base+"/order/1", "items")
	assert.NilError(t, err)
	members := lines(out)
	assert.Assert(t, is.Len(members, 3))
	assert.Assert(t, is.Contains(members[0], `"id":"a"`))
	assert.Assert(t, is.Contains(members[2], `"id":"c"`))

	out, err = run(t, nil, "--config", path, "follow", "--max-pages", "1", base+"/order/1", "items")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(lines(out), 2))
}

func TestFollowMissingResource(t *testing.T) {
	base, path := startServer(t)

	_, err := run(t, nil, "--config", path, "follow", base+"/order/404")
	assert.ErrorContains(t, err, "404")
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "http://localhost:8080/api", ":memory:")

	doc := filepath.Join(t.TempDir(), "order.json")
	assert.NilError(t, os.WriteFile(doc, []byte(`{"status":"open","_links":{"self":{"href":"/api/order/1"}}}`), 0o600))

	out, err := run(t, nil, "--config", path, "validate", doc)
	assert.NilError(t, err)
	assert.Equal(t, out, "valid hal document: 1 resources\n")

	out, err = run(t, strings.NewReader(`{"data":{"type":"order","id":"1","attributes":{"status":"open"}}}`), "--config", path, "validate", "-")
	assert.NilError(t, err)
	assert.Equal(t, out, "valid jsonapi document: 1 resources\n")

	_, err = run(t, strings.NewReader(`{"data":{"type":"order","id":"1","attributes":{"status":5}}}`), "--config", path, "validate", "-")
	assert.ErrorContains(t, err, "order/1")

	_, err = run(t, strings.NewReader(`{"total":1}`), "--config", path, "validate", "-")
	assert.Assert(t, err != nil)
}

func TestOpenAPI(t *testing.T) {
	path := writeConfig(t, "http://localhost:8080/api", ":memory:")

	out, err := run(t, nil, "--config", path, "openapi", "--skip-linting", "--title", "Orders")
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(out, `"title":"Orders"`))
	assert.Assert(t, is.Contains(out, `"OrderHAL"`))
	assert.Assert(t, is.Contains(out, `"/order/{id}/cancel"`))
}

func TestMigrate(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "hypermedia.db")
	path := writeConfig(t, "http://localhost:8080/api", dsn)

	_, err := run(t, nil, "--config", path, "migrate")
	assert.NilError(t, err)

	// applying twice is a no-op
	_, err = run(t, nil, "--config", path, "migrate")
	assert.NilError(t, err)
}

func TestConfigurationError(t *testing.T) {
	t.Setenv("HYPERMEDIA_DATABASE_DIALECT", "oracle")

	_, err := run(t, nil, "openapi")
	assert.ErrorContains(t, err, "configuration error")
}

func TestRegisterTypesRejectsBadDeclarations(t *testing.T) {
	a := &app{cfg: &config.Config{Types: []config.TypeConfig{{
		Name:      "order",
		Relations: []config.RelationConfig{{Name: "self", Target: "order", Cardinality: "one"}},
	}}}}
	a.log = slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := a.newAPI(nil)
	assert.ErrorContains(t, err, "reserved")
}
