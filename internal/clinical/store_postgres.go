package clinical

import (
	"context"
	"database/sql"
	"fmt"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

// PostgresStore is the shared-database implementation. Pure I/O; the access
// rules live in the predicate layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetPatient(ctx context.Context, id domain.PatientID) (*access.Patient, error) {
	var (
		raw    string
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM patients WHERE id = $1`, id.String()).
		Scan(&raw, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	st, err := access.ParsePatientStatus(status)
	if err != nil {
		return nil, err
	}
	return &access.Patient{ID: id, Status: st}, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id domain.PatientID, status access.PatientStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patients SET status = $2 WHERE id = $1`, id.String(), string(status))
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id domain.EventID) (*access.Event, error) {
	event := &access.Event{ID: id}
	var createdBy string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_by, created_at, event_type FROM clinical_events WHERE id = $1`,
		id.String()).
		Scan(&createdBy, &event.CreatedAt, &event.Type)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	author, err := domain.ParseSubjectID(createdBy)
	if err != nil {
		return nil, err
	}
	event.CreatedBy = author
	return event, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id domain.EventID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM clinical_events WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
