package cache

import (
	"context"

	"clinauth/internal/access"
)

// Rules is the cached variant of access.Ruleset: same predicate surface,
// answers served through Decisions. Patient and event predicates are keyed
// by resource; IsDoctor and HasContext depend only on the subject.
type Rules struct {
	rules     *access.Ruleset
	decisions *Decisions
}

func WrapRules(rules *access.Ruleset, decisions *Decisions) *Rules {
	return &Rules{rules: rules, decisions: decisions}
}

// Raw exposes the uncached ruleset for callers that must not touch the
// cache (the bulk resolver, equivalence tests).
func (r *Rules) Raw() *access.Ruleset { return r.rules }

func (r *Rules) patient(ctx context.Context, sub *access.Subject, p *access.Patient, decision string, extra []string, compute func() bool) bool {
	if p == nil {
		return false
	}
	key := p.Key()
	return r.decisions.Evaluate(ctx, sub, decision, &key, extra, compute)
}

func (r *Rules) event(ctx context.Context, sub *access.Subject, e *access.Event, decision string, compute func() bool) bool {
	if e == nil {
		return false
	}
	key := e.Key()
	return r.decisions.Evaluate(ctx, sub, decision, &key, nil, compute)
}

func (r *Rules) CanAccessPatient(ctx context.Context, sub *access.Subject, p *access.Patient) bool {
	return r.patient(ctx, sub, p, access.PermAccessPatient, nil, func() bool {
		return r.rules.CanAccessPatient(sub, p)
	})
}

func (r *Rules) CanSeePatientInSearch(ctx context.Context, sub *access.Subject, p *access.Patient) bool {
	return r.patient(ctx, sub, p, access.PermSearchPatient, nil, func() bool {
		return r.rules.CanSeePatientInSearch(sub, p)
	})
}

func (r *Rules) CanChangePatientPersonalData(ctx context.Context, sub *access.Subject, p *access.Patient) bool {
	return r.patient(ctx, sub, p, access.PermChangePersonalData, nil, func() bool {
		return r.rules.CanChangePatientPersonalData(sub, p)
	})
}

func (r *Rules) CanChangePatientStatus(ctx context.Context, sub *access.Subject, p *access.Patient, newStatus access.PatientStatus) bool {
	return r.patient(ctx, sub, p, access.PermChangeStatus, []string{string(newStatus)}, func() bool {
		return r.rules.CanChangePatientStatus(sub, p, newStatus)
	})
}

// Event freshness expires on its own, so edit/delete decisions are cached
// too: the TTL bounds how long a just-staled event can still look editable.
func (r *Rules) CanEditEvent(ctx context.Context, sub *access.Subject, e *access.Event) bool {
	return r.event(ctx, sub, e, access.PermEditEvent, func() bool {
		return r.rules.CanEditEvent(sub, e)
	})
}

func (r *Rules) CanDeleteEvent(ctx context.Context, sub *access.Subject, e *access.Event) bool {
	return r.event(ctx, sub, e, access.PermDeleteEvent, func() bool {
		return r.rules.CanDeleteEvent(sub, e)
	})
}

func (r *Rules) IsDoctor(ctx context.Context, sub *access.Subject) bool {
	return r.decisions.Evaluate(ctx, sub, "subjects.is_doctor", nil, nil, func() bool {
		return r.rules.IsDoctor(sub)
	})
}

func (r *Rules) HasContext(ctx context.Context, sub *access.Subject) bool {
	return r.decisions.Evaluate(ctx, sub, "subjects.has_context", nil, nil, func() bool {
		return r.rules.HasContext(sub)
	})
}
