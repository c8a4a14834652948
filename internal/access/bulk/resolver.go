// Package bulk answers "which of these N resources may the subject act on"
// without paying one database round trip per resource. Every query here is
// read only, and every result set must stay exactly equivalent to looping
// the corresponding predicate over the candidates.
package bulk

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

// Resolver issues the aggregate queries. It shares the ruleset (and its
// clock) with the rest of the core so freshness cutoffs agree.
type Resolver struct {
	db    *sql.DB
	rules *access.Ruleset
}

func NewResolver(db *sql.DB, rules *access.Ruleset) *Resolver {
	return &Resolver{db: db, rules: rules}
}

// PatientFilter narrows the candidate set. An empty filter means every
// patient.
type PatientFilter struct {
	Statuses []access.PatientStatus
}

// AccessiblePatientIDs returns the ids of every candidate patient the
// subject may access, in one query. The WHERE clause must mirror
// Ruleset.CanAccessPatient: today that rule is a flat grant for any
// authenticated subject, so the only access condition lives in Go, and the
// SQL only applies the caller's filter. If the access rule gains per-status
// or per-hospital conditions they must be added to this query in the same
// change.
func (r *Resolver) AccessiblePatientIDs(ctx context.Context, sub *access.Subject, filter PatientFilter) (map[domain.PatientID]struct{}, error) {
	ids := make(map[domain.PatientID]struct{})
	if sub == nil || !sub.Authenticated {
		return ids, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		rows, err = r.db.QueryContext(ctx,
			`SELECT id FROM patients WHERE status = ANY($1)`, pq.Array(statuses))
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT id FROM patients`)
	}
	if err != nil {
		return nil, fmt.Errorf("query accessible patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan patient id: %w", err)
		}
		id, err := domain.ParsePatientID(raw)
		if err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accessible patients: %w", err)
	}
	return ids, nil
}

// EditableEventIDs returns the ids of every event the subject may still
// edit or delete: authored by them and younger than the edit window. One
// query; the cutoff comes from the injected clock, never from SQL now().
func (r *Resolver) EditableEventIDs(ctx context.Context, sub *access.Subject) (map[domain.EventID]struct{}, error) {
	ids := make(map[domain.EventID]struct{})
	if sub == nil || !sub.Authenticated {
		return ids, nil
	}
	cutoff := r.rules.Clock().Now().Add(-access.EditWindow)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM clinical_events WHERE created_by = $1 AND created_at > $2`,
		sub.ID.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query editable events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		id, err := domain.ParseEventID(raw)
		if err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editable events: %w", err)
	}
	return ids, nil
}

// Projection is the eagerly loaded role/group view of one subject. Fetch it
// once per request and reuse it for every predicate or summary call in that
// request.
type Projection struct {
	SubjectID       domain.SubjectID
	Profession      access.Profession
	HospitalContext string
	Groups          []string
}

// Subject converts the projection into the predicate input shape. A
// projection only exists for stored, authenticated principals.
func (p *Projection) Subject() *access.Subject {
	return &access.Subject{
		ID:              p.SubjectID,
		Authenticated:   true,
		Profession:      p.Profession,
		HospitalContext: p.HospitalContext,
	}
}

// Projection loads profession, hospital context and group names in a single
// aggregated query. sql.ErrNoRows is returned unwrapped so callers can
// distinguish "unknown subject" from I/O failure.
func (r *Resolver) Projection(ctx context.Context, id domain.SubjectID) (*Projection, error) {
	const query = `
		SELECT p.profession,
		       COALESCE(p.hospital_context, ''),
		       COALESCE(array_agg(g.group_name) FILTER (WHERE g.group_name IS NOT NULL), '{}')
		FROM subject_profiles p
		LEFT JOIN subject_groups g ON g.subject_id = p.subject_id
		WHERE p.subject_id = $1
		GROUP BY p.profession, p.hospital_context
	`
	proj := &Projection{SubjectID: id}
	var (
		rawProfession string
		groups        pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).
		Scan(&rawProfession, &proj.HospitalContext, &groups)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load subject projection: %w", err)
	}
	profession, err := access.ParseProfession(rawProfession)
	if err != nil {
		return nil, err
	}
	proj.Profession = profession
	proj.Groups = []string(groups)
	return proj, nil
}

// Summary aggregates how many resources each permission currently grants
// and which resource kinds the subject can reach at all.
type Summary struct {
	PermissionCounts map[string]int `json:"permission_counts"`
	AccessibleKinds  []access.Kind  `json:"accessible_kinds"`
}

// Summary computes the aggregate in O(few) queries: one patient count, one
// editable-event count. Unauthenticated subjects get an empty summary and
// cost zero queries.
func (r *Resolver) Summary(ctx context.Context, sub *access.Subject) (*Summary, error) {
	summary := &Summary{PermissionCounts: map[string]int{}}
	if sub == nil || !sub.Authenticated {
		return summary, nil
	}

	var patientCount int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&patientCount); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}

	cutoff := r.rules.Clock().Now().Add(-access.EditWindow)
	var editableCount int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clinical_events WHERE created_by = $1 AND created_at > $2`,
		sub.ID.String(), cutoff).Scan(&editableCount)
	if err != nil {
		return nil, fmt.Errorf("count editable events: %w", err)
	}

	elevatedCount := 0
	if sub.Profession.Elevated() {
		elevatedCount = patientCount
	}
	summary.PermissionCounts[access.PermAccessPatient] = patientCount
	summary.PermissionCounts[access.PermSearchPatient] = patientCount
	summary.PermissionCounts[access.PermChangeStatus] = patientCount
	summary.PermissionCounts[access.PermChangePersonalData] = elevatedCount
	summary.PermissionCounts[access.PermDischargePatient] = elevatedCount
	summary.PermissionCounts[access.PermEditEvent] = editableCount
	summary.PermissionCounts[access.PermDeleteEvent] = editableCount

	if patientCount > 0 {
		summary.AccessibleKinds = append(summary.AccessibleKinds, access.KindPatient)
	}
	if editableCount > 0 {
		summary.AccessibleKinds = append(summary.AccessibleKinds, access.KindEvent)
	}
	return summary, nil
}
