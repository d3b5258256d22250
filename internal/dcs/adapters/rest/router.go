package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofs/internal/authn"
	"github.com/marmos91/dittofs/internal/dcs"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
)

// NewRouter wires the chi router for the GA4GH DRS surface: both object
// endpoints require a download work-order token bound to {object_id}.
// ready backs /health/ready.
func NewRouter(registry *dcs.RegistryController, keys *authn.KeySet, ready func(r *http.Request) error, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	servicebootstrap.MountObservability(r, ready, metricsEnabled)

	objectHandler := NewObjectHandler(registry)

	r.Route("/ga4gh/drs/v1/objects/{object_id}", func(r chi.Router) {
		r.Use(workOrderAuth(keys))
		r.Use(requireBoundFile())

		r.Get("/", objectHandler.GetObject)
		r.Get("/envelopes", objectHandler.GetEnvelope)
	})

	return r
}

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
