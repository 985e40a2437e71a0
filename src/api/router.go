// Package api serves the HTTP surface: health, metrics, publishing and
// sample CRUD.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskrelay/src/logger"
)

// NewRouter wires every route onto a chi router.
func NewRouter(h *Handlers, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages/{topic}", h.PublishMessage)

		r.Route("/samples", func(r chi.Router) {
			r.Post("/", h.CreateSample)
			r.Get("/", h.ListSamples)
			r.Get("/{id}", h.GetSample)
		})
	})

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("Request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"request_id", chimiddleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
