// Package clinical persists the minimal patient/event shapes the
// authorization core reads. Consumer apps own the full clinical record;
// these stores are what guards and the demo API resolve route params
// against.
package clinical

import (
	"context"
	"errors"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

// ErrNotFound is returned when a patient or event does not exist. Guards
// translate it into a 404.
var ErrNotFound = errors.New("not found")

type PatientStore interface {
	GetPatient(ctx context.Context, id domain.PatientID) (*access.Patient, error)
	UpdateStatus(ctx context.Context, id domain.PatientID, status access.PatientStatus) error
}

type EventStore interface {
	GetEvent(ctx context.Context, id domain.EventID) (*access.Event, error)
	DeleteEvent(ctx context.Context, id domain.EventID) error
}
