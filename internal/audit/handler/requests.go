package handler

import (
	"strings"

	"phiguard/internal/audit"
)

// RecordEventRequest is the HTTP request body for POST /audit/events.
type RecordEventRequest struct {
	EventType     string            `json:"event_type"`
	UserID        string            `json:"user_id"`
	UserEmail     string            `json:"user_email"`
	UserRole      string            `json:"user_role"`
	UserPatientID string            `json:"user_patient_id,omitempty"`
	ResourceType  string            `json:"resource_type"`
	ResourceID    string            `json:"resource_id,omitempty"`
	PatientID     string            `json:"patient_id,omitempty"`
	IPAddress     string            `json:"ip_address,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	Authorized    bool              `json:"authorized"`
}

// Validate trims the request and delegates field validation to the domain
// input, so HTTP callers and in-process callers share one rulebook.
func (r *RecordEventRequest) Validate() error {
	r.EventType = strings.TrimSpace(r.EventType)
	r.UserID = strings.TrimSpace(r.UserID)
	r.UserEmail = strings.TrimSpace(r.UserEmail)
	r.UserRole = strings.TrimSpace(r.UserRole)
	r.ResourceType = strings.TrimSpace(r.ResourceType)
	return r.ToInput().Validate()
}

// ToInput converts the request into the domain access description.
func (r *RecordEventRequest) ToInput() audit.RecordInput {
	return audit.RecordInput{
		EventType:     audit.EventType(r.EventType),
		UserID:        r.UserID,
		UserEmail:     r.UserEmail,
		UserRole:      audit.Role(r.UserRole),
		UserPatientID: r.UserPatientID,
		ResourceType:  r.ResourceType,
		ResourceID:    r.ResourceID,
		PatientID:     r.PatientID,
		IPAddress:     r.IPAddress,
		Details:       r.Details,
		Authorized:    r.Authorized,
	}
}
