// Package access is the authorization core of the clinical-collaboration
// platform: the role registry, the capability predicates gating every
// read/write on patients and clinical events, and the injectable clock the
// time-window rules depend on.
package access

import (
	"fmt"
	"time"

	"clinauth/pkg/domain"
)

// Profession classifies an authenticated subject. The zero value is Unset:
// an authenticated subject whose profile was never completed still gets the
// baseline grants, but none of the elevated ones.
type Profession string

const (
	ProfessionUnset           Profession = ""
	ProfessionDoctor          Profession = "doctor"
	ProfessionResident        Profession = "resident"
	ProfessionNurse           Profession = "nurse"
	ProfessionPhysiotherapist Profession = "physiotherapist"
	ProfessionStudent         Profession = "student"
)

// elevated is the closed set of professions allowed to discharge patients
// and edit patient personal data. Nothing outside this package can widen it.
var elevated = map[Profession]struct{}{
	ProfessionDoctor:   {},
	ProfessionResident: {},
}

// Elevated reports whether the profession carries the elevated capability
// set (discharge, personal-data edit).
func (p Profession) Elevated() bool {
	_, ok := elevated[p]
	return ok
}

func ParseProfession(s string) (Profession, error) {
	switch p := Profession(s); p {
	case ProfessionUnset, ProfessionDoctor, ProfessionResident,
		ProfessionNurse, ProfessionPhysiotherapist, ProfessionStudent:
		return p, nil
	}
	return ProfessionUnset, fmt.Errorf("unknown profession %q", s)
}

// PatientStatus is the admission state of a patient.
type PatientStatus string

const (
	StatusInpatient   PatientStatus = "inpatient"
	StatusOutpatient  PatientStatus = "outpatient"
	StatusEmergency   PatientStatus = "emergency"
	StatusDischarged  PatientStatus = "discharged"
	StatusTransferred PatientStatus = "transferred"
)

func ParsePatientStatus(s string) (PatientStatus, error) {
	switch st := PatientStatus(s); st {
	case StatusInpatient, StatusOutpatient, StatusEmergency,
		StatusDischarged, StatusTransferred:
		return st, nil
	}
	return "", fmt.Errorf("unknown patient status %q", s)
}

// Subject is the authenticated principal asking for access. It is produced
// by the authentication layer and read-only here.
type Subject struct {
	ID            domain.SubjectID
	Authenticated bool
	Profession    Profession

	// HospitalContext is the legacy scoping tag some deployments still set.
	// It only feeds HasContext; the flat access rules ignore it.
	HospitalContext string
}

// Patient is the resource shape the predicates need; consumer apps carry the
// full clinical record elsewhere.
type Patient struct {
	ID     domain.PatientID
	Status PatientStatus
}

// Event is the base shape of any editable clinical record (note, report,
// media attachment). The core only reads CreatedBy and CreatedAt.
type Event struct {
	ID        domain.EventID
	CreatedBy domain.SubjectID
	CreatedAt time.Time
	Type      string
}

// Kind tags a resource so callers dispatch on an explicit enum instead of
// sniffing runtime types.
type Kind string

const (
	KindPatient Kind = "patient"
	KindEvent   Kind = "event"
)

// ResourceKey identifies a resource for cache keys and epoch scoping.
type ResourceKey struct {
	Kind Kind
	ID   string
}

// Object is anything the backend adapter can be asked about.
type Object interface {
	Key() ResourceKey
}

func (p *Patient) Key() ResourceKey {
	return ResourceKey{Kind: KindPatient, ID: p.ID.String()}
}

func (e *Event) Key() ResourceKey {
	return ResourceKey{Kind: KindEvent, ID: e.ID.String()}
}

// Clock abstracts time so the edit-window rules are deterministic under
// test. Production wiring passes SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
