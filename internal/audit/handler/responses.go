package handler

import (
	"time"

	"phiguard/internal/audit"
)

// EventResponse is the JSON view of a recorded audit event, verdict included
// so the caller can deny the underlying action on a critical violation.
type EventResponse struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	EventType    string            `json:"event_type"`
	UserID       string            `json:"user_id"`
	UserEmail    string            `json:"user_email"`
	UserRole     string            `json:"user_role"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PatientID    string            `json:"patient_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	IsViolation  bool              `json:"is_violation"`
	Severity     string            `json:"severity,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// FromEvent converts a domain event to its JSON view.
func FromEvent(e *audit.Event) EventResponse {
	return EventResponse{
		ID:           e.ID,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		EventType:    string(e.EventType),
		UserID:       e.UserID,
		UserEmail:    e.UserEmail,
		UserRole:     string(e.UserRole),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		PatientID:    e.PatientID,
		IPAddress:    e.IPAddress,
		Details:      e.Details,
		IsViolation:  e.IsViolation,
		Severity:     string(e.Severity),
		Reason:       e.Reason,
	}
}
