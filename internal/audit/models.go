package audit

import (
	"time"

	dErrors "phiguard/pkg/domain-errors"
)

// EventType classifies the access being audited.
type EventType string

const (
	EventLogin             EventType = "login"
	EventLoginFailed       EventType = "login_failed"
	EventPatientView       EventType = "patient_view"
	EventPatientSearch     EventType = "patient_search"
	EventRecordUpdate      EventType = "record_update"
	EventChatQuery         EventType = "chat_query"
	EventAppointmentView   EventType = "appointment_view"
	EventAppointmentCreate EventType = "appointment_create"
	EventExport            EventType = "export"
	EventOther             EventType = "other"
)

var validEventTypes = map[EventType]bool{
	EventLogin:             true,
	EventLoginFailed:       true,
	EventPatientView:       true,
	EventPatientSearch:     true,
	EventRecordUpdate:      true,
	EventChatQuery:         true,
	EventAppointmentView:   true,
	EventAppointmentCreate: true,
	EventExport:            true,
	EventOther:             true,
}

// phiReadEvents are the event types the after-hours rule treats as a PHI
// read. Writes and auth events are excluded.
var phiReadEvents = map[EventType]bool{
	EventPatientView:     true,
	EventPatientSearch:   true,
	EventAppointmentView: true,
	EventChatQuery:       true,
	EventExport:          true,
}

// IsPHIRead reports whether the event type reads protected health information.
func (t EventType) IsPHIRead() bool { return phiReadEvents[t] }

// Role is the acting user's role as asserted by the caller's auth layer.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

var validRoles = map[Role]bool{
	RoleOwner:   true,
	RoleDoctor:  true,
	RolePatient: true,
}

// Severity grades a detected violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// rank orders severities for highest-wins verdict selection.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ParseSeverity validates a severity string from an API caller.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s), nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "invalid severity: "+s)
}

// Event is one immutable record of an access to PHI or system resources.
// Once appended to a Store it is never modified or deleted.
type Event struct {
	ID        string
	Seq       int64 // store-assigned, monotonically increasing
	Timestamp time.Time

	EventType EventType
	UserID    string
	UserEmail string
	UserRole  Role

	ResourceType string
	ResourceID   string
	PatientID    string // PHI subject, when applicable
	IPAddress    string
	Details      map[string]string

	// Verdict. Severity and Reason are set iff IsViolation is true.
	IsViolation bool
	Severity    Severity
	Reason      string
}

// RecordInput describes one access for the Recorder. The caller supplies its
// own authorization verdict; the Recorder never authorizes anything itself.
type RecordInput struct {
	EventType EventType
	UserID    string
	UserEmail string
	UserRole  Role
	// UserPatientID is the acting user's own linked patient record, set for
	// patient-role users so the cross-patient rule can compare subjects.
	UserPatientID string

	ResourceType string
	ResourceID   string
	PatientID    string
	IPAddress    string
	Details      map[string]string

	// Authorized carries the caller's authorization check outcome.
	Authorized bool
}

// Validate rejects malformed access descriptions before any store write.
func (in RecordInput) Validate() error {
	if !validEventTypes[in.EventType] {
		return dErrors.New(dErrors.CodeValidation, "unknown event type: "+string(in.EventType))
	}
	if in.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if in.UserEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "user_email is required")
	}
	if !validRoles[in.UserRole] {
		return dErrors.New(dErrors.CodeValidation, "unknown user role: "+string(in.UserRole))
	}
	if in.ResourceType == "" {
		return dErrors.New(dErrors.CodeValidation, "resource_type is required")
	}
	return nil
}
