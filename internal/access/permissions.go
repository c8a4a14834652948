package access

// Permission names are the wire-level identifiers used by the backend
// adapter, the decision cache, and the audit trail. The registry in the
// backend package maps each name to its predicate.
const (
	PermAccessPatient      = "patients.access_patient"
	PermSearchPatient      = "patients.search_patient"
	PermChangePersonalData = "patients.change_personal_data"
	PermChangeStatus       = "patients.change_status"
	PermDischargePatient   = "patients.discharge_patient"
	PermEditEvent          = "events.edit_event"
	PermDeleteEvent        = "events.delete_event"
)
