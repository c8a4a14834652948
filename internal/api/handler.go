// Package api is the thin HTTP layer of the demo server: it resolves
// request shapes and delegates every decision to the access packages.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"clinauth/internal/access"
	"clinauth/internal/access/bulk"
	"clinauth/internal/access/cache"
	"clinauth/internal/access/guard"
	"clinauth/internal/clinical"
	"clinauth/internal/platform/middleware"
)

type Handler struct {
	logger    *slog.Logger
	rules     *cache.Rules
	decisions *cache.Decisions
	resolver  *bulk.Resolver // nil when no database is configured
	patients  clinical.PatientStore
	events    clinical.EventStore
}

func NewHandler(logger *slog.Logger, rules *cache.Rules, decisions *cache.Decisions, resolver *bulk.Resolver, patients clinical.PatientStore, events clinical.EventStore) *Handler {
	return &Handler{
		logger:    logger,
		rules:     rules,
		decisions: decisions,
		resolver:  resolver,
		patients:  patients,
		events:    events,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, status int, code, description string) {
	h.writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// getPatient returns the guarded patient; the guard stack already decided
// access.
func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	patient := guard.PatientFrom(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     patient.ID.String(),
		"status": string(patient.Status),
	})
}

type statusChangeRequest struct {
	Status string `json:"status"`
}

// changePatientStatus gates on the requested target status, which is only
// known after reading the body, so the check lives here instead of in a
// middleware gate.
func (h *Handler) changePatientStatus(w http.ResponseWriter, r *http.Request) {
	sub := middleware.SubjectFrom(r.Context())
	patient := guard.PatientFrom(r.Context())

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	newStatus, err := access.ParsePatientStatus(req.Status)
	if err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if !h.rules.CanChangePatientStatus(r.Context(), sub, patient, newStatus) {
		h.writeErr(w, http.StatusForbidden, "forbidden", "you are not allowed to set this status")
		return
	}

	if err := h.patients.UpdateStatus(r.Context(), patient.ID, newStatus); err != nil {
		if errors.Is(err, clinical.ErrNotFound) {
			h.writeErr(w, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "status update failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "internal", "status update failed")
		return
	}

	// The patient changed; cached decisions about it are stale.
	if err := h.decisions.InvalidateResource(r.Context(), patient.Key()); err != nil {
		h.logger.WarnContext(r.Context(), "cache invalidation failed", "error", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     patient.ID.String(),
		"status": string(newStatus),
	})
}

// editEvent stands in for the consumer app's form handling; the guard stack
// already decided editability.
func (h *Handler) editEvent(w http.ResponseWriter, r *http.Request) {
	event := guard.EventFrom(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":   event.ID.String(),
		"type": event.Type,
	})
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	event := guard.EventFrom(r.Context())
	if err := h.events.DeleteEvent(r.Context(), event.ID); err != nil {
		if errors.Is(err, clinical.ErrNotFound) {
			h.writeErr(w, http.StatusNotFound, "not_found", "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "event delete failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "internal", "event delete failed")
		return
	}
	if err := h.decisions.InvalidateResource(r.Context(), event.Key()); err != nil {
		h.logger.WarnContext(r.Context(), "cache invalidation failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// listAccessiblePatients answers with the bulk-filtered id set instead of
// checking candidates one by one.
func (h *Handler) listAccessiblePatients(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		h.writeErr(w, http.StatusServiceUnavailable, "unavailable", "bulk queries need a configured database")
		return
	}
	sub := middleware.SubjectFrom(r.Context())

	var filter bulk.PatientFilter
	for _, raw := range r.URL.Query()["status"] {
		status, err := access.ParsePatientStatus(raw)
		if err != nil {
			h.writeErr(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	ids, err := h.resolver.AccessiblePatientIDs(r.Context(), sub, filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bulk patient query failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "internal", "bulk patient query failed")
		return
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id.String())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patient_ids": out})
}

func (h *Handler) mySummary(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		h.writeErr(w, http.StatusServiceUnavailable, "unavailable", "summaries need a configured database")
		return
	}
	sub := middleware.SubjectFrom(r.Context())
	summary, err := h.resolver.Summary(r.Context(), sub)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "summary failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "internal", "summary failed")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// Ops endpoints, consumed by accessctl and monitoring.

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.decisions.Stats())
}

func (h *Handler) cacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.decisions.InvalidateAll(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "global invalidation failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "internal", "global invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) cacheProbe(w http.ResponseWriter, r *http.Request) {
	available := h.decisions.Available(r.Context())
	status := http.StatusOK
	if !available {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]bool{"available": available})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
