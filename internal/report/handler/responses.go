package handler

import (
	"time"

	"phiguard/internal/audit"
	"phiguard/internal/report"
)

// SummaryResponse is the JSON view of GET /compliance/summary.
type SummaryResponse struct {
	Summary          SummaryStats `json:"summary"`
	ComplianceStatus string       `json:"compliance_status"`
	LastUpdated      string       `json:"last_updated"`
}

// SummaryStats mirrors the dashboard counters.
type SummaryStats struct {
	TotalEvents          int            `json:"total_events"`
	TodayEvents          int            `json:"today_events"`
	TotalViolations      int            `json:"total_violations"`
	TodayViolations      int            `json:"today_violations"`
	ViolationsBySeverity map[string]int `json:"violations_by_severity"`
	UniqueUsersToday     int            `json:"unique_users_today"`
}

// FromSummary converts the reporting summary to its JSON view.
func FromSummary(s *report.Summary, asOf time.Time) SummaryResponse {
	status := "compliant"
	if s.TotalViolations > 0 {
		status = "violations_detected"
	}

	bySeverity := make(map[string]int, len(s.ViolationsBySeverity))
	for severity, count := range s.ViolationsBySeverity {
		bySeverity[string(severity)] = count
	}

	return SummaryResponse{
		Summary: SummaryStats{
			TotalEvents:          s.TotalEvents,
			TodayEvents:          s.TodayEvents,
			TotalViolations:      s.TotalViolations,
			TodayViolations:      s.TodayViolations,
			ViolationsBySeverity: bySeverity,
			UniqueUsersToday:     s.UniqueUsersToday,
		},
		ComplianceStatus: status,
		LastUpdated:      asOf.UTC().Format(time.RFC3339),
	}
}

// ViolationsResponse is the JSON view of GET /compliance/violations.
type ViolationsResponse struct {
	Violations []ViolationEntry `json:"violations"`
	Total      int              `json:"total"`
}

// ViolationEntry is one violation in the compliance review list.
type ViolationEntry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	UserEmail    string `json:"user_email"`
	UserRole     string `json:"user_role"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	PatientID    string `json:"patient_id,omitempty"`
	Severity     string `json:"severity"`
	Reason       string `json:"reason"`
}

// FromViolation converts an event to a violation list entry.
func FromViolation(e audit.Event) ViolationEntry {
	return ViolationEntry{
		ID:           e.ID,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		EventType:    string(e.EventType),
		UserEmail:    e.UserEmail,
		UserRole:     string(e.UserRole),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		PatientID:    e.PatientID,
		Severity:     string(e.Severity),
		Reason:       e.Reason,
	}
}

// AuditLogResponse is the JSON view of GET /compliance/audit-log.
type AuditLogResponse struct {
	Events []LogEntry `json:"events"`
	Total  int        `json:"total"`
}

// LogEntry is one event in the full audit log view.
type LogEntry struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	EventType    string            `json:"event_type"`
	UserEmail    string            `json:"user_email"`
	UserRole     string            `json:"user_role"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PatientID    string            `json:"patient_id,omitempty"`
	IsViolation  bool              `json:"is_violation"`
	Severity     string            `json:"violation_severity,omitempty"`
	Reason       string            `json:"violation_reason,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// FromLogEntry converts an event to an audit log entry.
func FromLogEntry(e audit.Event) LogEntry {
	return LogEntry{
		ID:           e.ID,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		EventType:    string(e.EventType),
		UserEmail:    e.UserEmail,
		UserRole:     string(e.UserRole),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		PatientID:    e.PatientID,
		IsViolation:  e.IsViolation,
		Severity:     string(e.Severity),
		Reason:       e.Reason,
		Details:      e.Details,
	}
}

// PatientAccessLogResponse is the JSON view of
// GET /compliance/patient/{id}/access-log.
type PatientAccessLogResponse struct {
	PatientID    string        `json:"patient_id"`
	AccessEvents []AccessEntry `json:"access_events"`
	Total        int           `json:"total"`
}

// AccessEntry is one access in a patient's PHI access history.
type AccessEntry struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	EventType   string `json:"event_type"`
	UserEmail   string `json:"user_email"`
	UserRole    string `json:"user_role"`
	IsViolation bool   `json:"is_violation"`
	Reason      string `json:"violation_reason,omitempty"`
}

// FromAccessEntry converts an event to a patient access entry.
func FromAccessEntry(e audit.Event) AccessEntry {
	return AccessEntry{
		ID:          e.ID,
		Timestamp:   e.Timestamp.Format(time.RFC3339Nano),
		EventType:   string(e.EventType),
		UserEmail:   e.UserEmail,
		UserRole:    string(e.UserRole),
		IsViolation: e.IsViolation,
		Reason:      e.Reason,
	}
}

// UserActivityResponse is the JSON view of
// GET /compliance/user/{id}/activity.
type UserActivityResponse struct {
	UserID   string          `json:"user_id"`
	Activity []ActivityEntry `json:"activity"`
	Total    int             `json:"total"`
}

// ActivityEntry is one event in a user's activity trail.
type ActivityEntry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	PatientID    string `json:"patient_id,omitempty"`
	IsViolation  bool   `json:"is_violation"`
}

// FromActivityEntry converts an event to a user activity entry.
func FromActivityEntry(e audit.Event) ActivityEntry {
	return ActivityEntry{
		ID:           e.ID,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		EventType:    string(e.EventType),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		PatientID:    e.PatientID,
		IsViolation:  e.IsViolation,
	}
}
