package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/violatingcp/pixeltrack-standalone/internal/api"
	"github.com/violatingcp/pixeltrack-standalone/internal/config"
	"github.com/violatingcp/pixeltrack-standalone/internal/db"
	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
	"github.com/violatingcp/pixeltrack-standalone/internal/report"
)

// newServeMux exposes the report, the tsweb debug pages (including the
// processor counters at /debug/varz) and, when store is not nil, the run
// API and the database admin routes.
func newServeMux(collector *report.Collector, store *db.DB, cfg *config.VertexingConfig) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	debug := tsweb.Debugger(mux)
	debug.Handle("report", "Clustering histograms", collector.Handler())
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
		api.NewServer(store, cfg).Register(mux)
	}
	mux.Handle("/report", collector.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/report", http.StatusFound)
	})
	return mux, nil
}

// serve runs the pipeline while serving HTTP, then keeps serving until ctx
// is cancelled.
func serve(ctx context.Context, pl *pipeline, addr string) error {
	mux, err := newServeMux(pl.collector, pl.store, pl.cfg)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	monitoring.Logf("Serving on %s", addr)

	if _, err := pl.run(ctx); err != nil {
		monitoring.Logf("Run failed: %v", err)
	}

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
