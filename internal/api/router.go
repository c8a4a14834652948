package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinauth/internal/access"
	"clinauth/internal/access/guard"
	"clinauth/internal/platform/metrics"
	"clinauth/internal/platform/middleware"
)

// NewRouter wires the demo routes. Every clinical route goes through the
// guard stages; the ops endpoints are unguarded and meant to be bound to an
// internal listener or protected upstream.
func NewRouter(h *Handler, g *guard.Guard, signingKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.Subject(signingKey, h.logger))

	r.Route("/patients", func(r chi.Router) {
		r.With(g.RequireSubject).Get("/", h.listAccessiblePatients)

		r.Route("/{patientID}", func(r chi.Router) {
			r.With(g.RequirePatientAccess("patientID")...).Get("/", h.getPatient)
			// Status changes gate inside the handler on the target status.
			r.With(g.RequireSubject, g.LoadPatient("patientID")).
				Post("/status", h.changePatientStatus)
		})
	})

	r.Route("/events/{eventID}", func(r chi.Router) {
		r.With(g.RequireEventEdit("eventID")...).Put("/", h.editEvent)
		r.With(g.RequireSubject, g.LoadEvent("eventID"),
			g.GateEvent(access.PermDeleteEvent, h.rules.CanDeleteEvent)).
			Delete("/", h.deleteEvent)
	})

	r.With(g.RequireSubject).Get("/me/permissions", h.mySummary)

	r.Route("/internal/cache", func(r chi.Router) {
		r.Get("/stats", h.cacheStats)
		r.Post("/clear", h.cacheClear)
		r.Get("/probe", h.cacheProbe)
	})

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
