package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskrelay/src/config"
	"taskrelay/src/db"
	"taskrelay/src/errtrack"
	"taskrelay/src/logger"
	"taskrelay/src/shutdown"
)

const shutdownTimeout = 10 * time.Second

// runtime is what every subcommand starts from.
type runtime struct {
	cfg      *config.Config
	log      logger.Logger
	reporter errtrack.Reporter
}

func bootstrap(service string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zl, err := logger.New(logger.Options{Debug: cfg.App.Debug, JSON: cfg.App.JSONLogEnabled})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	log := zl.With("service", service, "env", cfg.App.Environment)
	return &runtime{cfg: cfg, log: log, reporter: errtrack.NewLogReporter(log)}, nil
}

// fail reports an error that is about to end the process.
func (rt *runtime) fail(ctx context.Context, err error) error {
	rt.reporter.Capture(ctx, err, map[string]string{errtrack.ComponentTag: "main"})
	return err
}

// interrupted reports whether err is only the cancellation caused by a
// shutdown signal, such as a startup step cut short by SIGTERM.
func interrupted(c *shutdown.Coordinator, err error) bool {
	return c.Signal() != nil && errors.Is(err, context.Canceled)
}

// openManager opens the database pool described by settings.
func (rt *runtime) openManager(settings config.Database) (*db.Manager, error) {
	manager, err := db.Open(settings, rt.log)
	if err != nil {
		return nil, err
	}
	rt.log.Info("Database pool ready", "driver", manager.Driver())
	return manager, nil
}

func (rt *runtime) closeManager(m *db.Manager) {
	if err := m.Close(); err != nil {
		rt.reporter.Capture(context.Background(), err, map[string]string{errtrack.ComponentTag: "db"})
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info("HTTP server stopped", "addr", srv.Addr)
	return nil
}

// serveMetrics exposes /metrics for services that have no HTTP API. A
// failure to listen is reported but does not stop the service.
func (rt *runtime) serveMetrics(ctx context.Context) {
	if rt.cfg.App.MetricsAddress == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              rt.cfg.App.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serve(ctx, srv, rt.log); err != nil {
			rt.reporter.Capture(ctx, err, map[string]string{errtrack.ComponentTag: "metrics"})
		}
	}()
}
