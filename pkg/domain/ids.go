// Package domain holds the typed identifiers shared across the authorization
// core. Wrapping uuid.UUID in distinct types makes subject/patient/event ids
// non-interchangeable at compile time.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type SubjectID uuid.UUID

type PatientID uuid.UUID

type EventID uuid.UUID

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s id is required", kind)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s id must not be the nil uuid", kind)
	}
	return id, nil
}

func ParseSubjectID(s string) (SubjectID, error) {
	id, err := parseUUID("subject", s)
	return SubjectID(id), err
}

func ParsePatientID(s string) (PatientID, error) {
	id, err := parseUUID("patient", s)
	return PatientID(id), err
}

func ParseEventID(s string) (EventID, error) {
	id, err := parseUUID("event", s)
	return EventID(id), err
}

func (id SubjectID) String() string { return uuid.UUID(id).String() }
func (id PatientID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string   { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
