package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/openapi"
	"github.com/tailbits/hypermedia/store/sqlstore"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "`serve` exposes the configured types over HTTP",
		Long:  "`serve` exposes the configured types as HAL and JSON:API documents backed by the configured database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if !skipMigrate {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}

			api, err := a.newAPI(store)
			if err != nil {
				return err
			}
			handler, err := a.router(api)
			if err != nil {
				return err
			}
			return a.listen(ctx, handler)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on start")
	return cmd
}

func (a *app) openStore(ctx context.Context) (*sql.DB, *sqlstore.Store, error) {
	d, err := sqlstore.DialectFor(a.cfg.Database.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlstore.Open(ctx, d, a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, sqlstore.New(db, d, a.log), nil
}

// router mounts the API under the path of the base URL, next to its OpenAPI
// document and the process metrics.
func (a *app) router(api *hypermedia.API) (http.Handler, error) {
	gen, err := openapi.NewGenerator(api, openapi.Validate(false))
	if err != nil {
		return nil, err
	}
	doc, err := gen.Schema()
	if err != nil {
		return nil, fmt.Errorf("generate openapi document: %w", err)
	}

	base, err := url.Parse(a.cfg.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	mount := base.Path
	if mount == "" {
		mount = "/"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/openapi.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(doc); err != nil {
			a.log.ErrorContext(req.Context(), "failed to write openapi document", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount(mount, api.Routes(hypermedia.NewHTTPResponder(a.log)))

	endpoints := api.Registry().Endpoints(strings.TrimRight(mount, "/"), func(p string) string { return p })
	a.log.Debug("routes mounted", "endpoints", endpoints)

	return r, nil
}

func (a *app) listen(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server shutdown error", "error", err)
		}
	}()

	a.log.Info("starting hypermedia server", "addr", a.cfg.Server.Addr, "base_url", a.cfg.Server.BaseURL, "types", len(a.cfg.Types))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
