// Package guard wraps request handlers with the capability predicates.
// Guarding is split into two composable stages so each can be tested and
// reused on its own: loaders resolve a route param into a resource (404
// when absent), gates apply one predicate to the subject and the loaded
// resource (403 on deny). Denials never run the wrapped handler and never
// leave partial side effects.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clinauth/internal/access"
	"clinauth/internal/access/cache"
	"clinauth/internal/audit"
	"clinauth/internal/clinical"
	"clinauth/internal/platform/middleware"
	"clinauth/pkg/domain"
)

var guardDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clinauth_guard_denials_total",
	Help: "Requests stopped before the handler, by outcome",
}, []string{"outcome"})

type contextKeyPatient struct{}
type contextKeyEvent struct{}

// PatientFrom returns the patient loaded by LoadPatient.
func PatientFrom(ctx context.Context) *access.Patient {
	p, _ := ctx.Value(contextKeyPatient{}).(*access.Patient)
	return p
}

// EventFrom returns the event loaded by LoadEvent.
func EventFrom(ctx context.Context) *access.Event {
	e, _ := ctx.Value(contextKeyEvent{}).(*access.Event)
	return e
}

// Guard builds the middleware. Decisions go through the cached ruleset;
// denials are counted and recorded in the audit trail.
type Guard struct {
	rules    *cache.Rules
	patients clinical.PatientStore
	events   clinical.EventStore
	recorder *audit.Recorder
	logger   *slog.Logger
	loginURL string
}

type Option func(*Guard)

// WithLoginURL redirects browser clients to a login page instead of
// answering 401.
func WithLoginURL(url string) Option {
	return func(g *Guard) { g.loginURL = url }
}

func New(rules *cache.Rules, patients clinical.PatientStore, events clinical.EventStore, recorder *audit.Recorder, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		rules:    rules,
		patients: patients,
		events:   events,
		recorder: recorder,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireSubject stops unauthenticated requests before any resource is
// loaded.
func (g *Guard) RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := middleware.SubjectFrom(r.Context())
		if sub == nil || !sub.Authenticated {
			guardDenials.WithLabelValues("unauthenticated").Inc()
			g.unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoadPatient resolves the route param into a patient, or answers 404.
func (g *Guard) LoadPatient(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := domain.ParsePatientID(chi.URLParam(r, param))
			if err != nil {
				guardDenials.WithLabelValues("not_found").Inc()
				writeError(w, http.StatusNotFound, "not_found", "patient not found")
				return
			}
			patient, err := g.patients.GetPatient(r.Context(), id)
			if err != nil {
				if errors.Is(err, clinical.ErrNotFound) {
					guardDenials.WithLabelValues("not_found").Inc()
					writeError(w, http.StatusNotFound, "not_found", "patient not found")
					return
				}
				g.logger.ErrorContext(r.Context(), "patient lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "patient lookup failed")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyPatient{}, patient)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadEvent resolves the route param into an event, or answers 404.
func (g *Guard) LoadEvent(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := domain.ParseEventID(chi.URLParam(r, param))
			if err != nil {
				guardDenials.WithLabelValues("not_found").Inc()
				writeError(w, http.StatusNotFound, "not_found", "event not found")
				return
			}
			event, err := g.events.GetEvent(r.Context(), id)
			if err != nil {
				if errors.Is(err, clinical.ErrNotFound) {
					guardDenials.WithLabelValues("not_found").Inc()
					writeError(w, http.StatusNotFound, "not_found", "event not found")
					return
				}
				g.logger.ErrorContext(r.Context(), "event lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "event lookup failed")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyEvent{}, event)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PatientCheck is one cached patient predicate.
type PatientCheck func(ctx context.Context, sub *access.Subject, p *access.Patient) bool

// EventCheck is one cached event predicate.
type EventCheck func(ctx context.Context, sub *access.Subject, e *access.Event) bool

// GatePatient applies the check to the subject and the loaded patient.
// A missing subject or patient (stages not run) denies, never panics.
func (g *Guard) GatePatient(decision string, check PatientCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := middleware.SubjectFrom(r.Context())
			patient := PatientFrom(r.Context())
			if !check(r.Context(), sub, patient) {
				g.deny(w, r, sub, decision, patientKey(patient))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GateEvent applies the check to the subject and the loaded event.
func (g *Guard) GateEvent(decision string, check EventCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := middleware.SubjectFrom(r.Context())
			event := EventFrom(r.Context())
			if !check(r.Context(), sub, event) {
				g.deny(w, r, sub, decision, eventKey(event))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePatientAccess is the common stack for patient routes.
func (g *Guard) RequirePatientAccess(param string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		g.RequireSubject,
		g.LoadPatient(param),
		g.GatePatient(access.PermAccessPatient, g.rules.CanAccessPatient),
	}
}

// RequireEventEdit is the common stack for event mutation routes.
func (g *Guard) RequireEventEdit(param string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		g.RequireSubject,
		g.LoadEvent(param),
		g.GateEvent(access.PermEditEvent, g.rules.CanEditEvent),
	}
}

// RequireHospitalContext gates on the legacy scoping tag. Optional; only
// deployments still running hospital-scoped flows mount it.
func (g *Guard) RequireHospitalContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := middleware.SubjectFrom(r.Context())
		if !g.rules.HasContext(r.Context(), sub) {
			g.deny(w, r, sub, "subjects.has_context", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, sub *access.Subject, decision string, res *access.ResourceKey) {
	guardDenials.WithLabelValues("forbidden").Inc()

	event := audit.Event{Decision: decision, Allowed: false}
	if sub != nil {
		event.SubjectID = sub.ID.String()
	}
	if res != nil {
		event.Kind = string(res.Kind)
		event.ResourceID = res.ID
	}
	g.recorder.Record(r.Context(), event)

	g.logger.InfoContext(r.Context(), "request denied",
		"decision", decision,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeError(w, http.StatusForbidden, "forbidden", "you are not allowed to perform this action")
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if g.loginURL != "" && wantsHTML(r) {
		http.Redirect(w, r, g.loginURL+"?next="+r.URL.Path, http.StatusFound)
		return
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func patientKey(p *access.Patient) *access.ResourceKey {
	if p == nil {
		return nil
	}
	key := p.Key()
	return &key
}

func eventKey(e *access.Event) *access.ResourceKey {
	if e == nil {
		return nil
	}
	key := e.Key()
	return &key
}
