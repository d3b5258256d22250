package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofs/internal/authn"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/ucs"
)

// NewRouter wires the chi router for box and upload management. Every
// route requires a UOS token bound to the scope and resource id named in
// its requireScope middleware; create_box's resource id is the {storage_alias} it is
// creating under, everything else binds to the {box_id}/{file_id} it acts
// on. DeleteBox is deliberately not exposed here: it is operator-only,
// reachable through the operator CLI's direct DAO access instead. ready
// backs /health/ready, typically a Mongo ping.
func NewRouter(ctrl *ucs.Controller, keys *authn.KeySet, ready func(r *http.Request) error, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	servicebootstrap.MountObservability(r, ready, metricsEnabled)

	boxes := NewBoxHandler(ctrl)
	uploads := NewUploadHandler(ctrl)

	r.Group(func(r chi.Router) {
		r.Use(resourceAuth(keys))

		r.Route("/storages/{storage_alias}/boxes", func(r chi.Router) {
			r.With(requireScope(authn.ScopeCreateBox, "storage_alias")).Post("/", boxes.CreateBox)
		})

		r.Route("/boxes/{box_id}", func(r chi.Router) {
			r.With(requireScope(authn.ScopeViewBox, "box_id")).Get("/", boxes.GetBox)
			r.With(requireScope(authn.ScopeLockBox, "box_id")).Post("/lock", boxes.LockBox)
			r.With(requireScope(authn.ScopeUnlockBox, "box_id")).Post("/unlock", boxes.UnlockBox)
			r.With(requireScope(authn.ScopeViewBox, "box_id")).Get("/files", boxes.ListFiles)
			r.With(requireScope(authn.ScopeCreateUpload, "box_id")).Post("/files", uploads.InitiateUpload)

			r.Route("/files/{file_id}", func(r chi.Router) {
				r.With(requireScope(authn.ScopeUploadPart, "file_id")).Get("/parts/{part_no}", uploads.GetPartUploadURL)
				r.With(requireScope(authn.ScopeCloseUpload, "file_id")).Post("/complete", uploads.CompleteUpload)
				r.With(requireScope(authn.ScopeDeleteUpload, "file_id")).Delete("/", uploads.RemoveUpload)
			})
		})
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
