package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofs/internal/authn"
	"github.com/marmos91/dittofs/internal/fis"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
)

// NewRouter wires the chi router for the ingest and interrogation
// surfaces: /legacy/ingest, /federated/ingest_metadata,
// /federated/ingest_secret (any valid hub token), and the
// {storage_alias}-scoped listing, can-remove and interrogation-report
// endpoints (token bound to that hub). ready backs /health/ready.
func NewRouter(ingest *fis.IngestController, interrogation *fis.InterrogationHandler, keys *authn.KeySet, ready func(r *http.Request) error, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	servicebootstrap.MountObservability(r, ready, metricsEnabled)

	ingestHandler := NewIngestHandler(ingest)
	interrogationHandler := NewInterrogationHandler(interrogation)

	r.Group(func(r chi.Router) {
		r.Use(ingestAuth(keys))

		r.Post("/legacy/ingest", ingestHandler.IngestLegacy)
		r.Post("/federated/ingest_metadata", ingestHandler.IngestFederatedMetadata)
		r.Post("/federated/ingest_secret", ingestHandler.IngestFederatedSecret)

		r.Route("/storages/{storage_alias}", func(r chi.Router) {
			r.Use(requireBoundHub())

			r.Get("/uploads", interrogationHandler.ListUploads)
			r.Post("/uploads/can_remove", interrogationHandler.CanRemove)
			r.Post("/interrogation-reports", interrogationHandler.PostReport)
		})
	})

	return r
}

// requestLogger logs each request at info level once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).String())
	})
}
