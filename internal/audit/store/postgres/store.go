// Package postgres provides the durable audit ledger. Immutability is
// enforced at the storage layer: the schema installs a trigger that rejects
// UPDATE and DELETE on audit_events, so append-only is a database guarantee
// rather than an omission in this API.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"phiguard/internal/audit"
	"phiguard/pkg/platform/sentinel"
)

const defaultListLimit = 100

// Schema creates the ledger table, its access-path indexes and the
// immutability trigger. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq           BIGSERIAL PRIMARY KEY,
	id            UUID NOT NULL UNIQUE,
	timestamp     TIMESTAMPTZ NOT NULL,
	event_type    TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	user_email    TEXT NOT NULL,
	user_role     TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL DEFAULT '',
	patient_id    TEXT NOT NULL DEFAULT '',
	ip_address    TEXT NOT NULL DEFAULT '',
	details       JSONB NOT NULL DEFAULT '{}',
	is_violation  BOOLEAN NOT NULL DEFAULT FALSE,
	severity      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_user_time ON audit_events (user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_patient_time ON audit_events (patient_id, timestamp) WHERE patient_id <> '';

CREATE OR REPLACE FUNCTION audit_events_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'audit_events is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_events_no_mutation ON audit_events;
CREATE TRIGGER audit_events_no_mutation
	BEFORE UPDATE OR DELETE ON audit_events
	FOR EACH ROW EXECUTE FUNCTION audit_events_immutable();
`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema installs the ledger schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

const eventColumns = `seq, id, timestamp, event_type, user_id, user_email, user_role,
	resource_type, resource_id, patient_id, ip_address, details,
	is_violation, severity, reason`

// Append inserts the event and fills in its store-assigned sequence.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	details, err := json.Marshal(nonNilDetails(event.Details))
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, event_type, user_id, user_email, user_role,
			resource_type, resource_id, patient_id, ip_address, details,
			is_violation, severity, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`
	err = s.db.QueryRowContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.EventType),
		event.UserID,
		event.UserEmail,
		string(event.UserRole),
		event.ResourceType,
		event.ResourceID,
		event.PatientID,
		event.IPAddress,
		details,
		event.IsViolation,
		string(event.Severity),
		event.Reason,
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("insert audit event: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// RecentByUser returns the user's events since the cutoff, ascending.
func (s *Store) RecentByUser(ctx context.Context, userID string, since time.Time) ([]audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE user_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, seq ASC
	`, eventColumns)

	rows, err := s.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query user events: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentByPatient returns events touching the patient since the cutoff,
// ascending.
func (s *Store) RecentByPatient(ctx context.Context, patientID string, since time.Time) ([]audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE patient_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, seq ASC
	`, eventColumns)

	rows, err := s.db.QueryContext(ctx, query, patientID, since)
	if err != nil {
		return nil, fmt.Errorf("query patient events: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// List returns matching events newest first.
func (s *Store) List(ctx context.Context, filter audit.ListFilter) ([]audit.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_events WHERE 1=1`, eventColumns)
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.PatientID != "" {
		query += ` AND patient_id = ` + arg(filter.PatientID)
	}
	if filter.EventType != "" {
		query += ` AND event_type = ` + arg(string(filter.EventType))
	}
	if filter.OnlyViolations {
		query += ` AND is_violation`
	}
	if filter.Severity != "" {
		query += ` AND severity = ` + arg(string(filter.Severity))
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ` + arg(filter.Since)
	}
	if !filter.Until.IsZero() {
		query += ` AND timestamp < ` + arg(filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY timestamp DESC, seq DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM audit_events WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.PatientID != "" {
		query += ` AND patient_id = ` + arg(filter.PatientID)
	}
	if filter.EventType != "" {
		query += ` AND event_type = ` + arg(string(filter.EventType))
	}
	if filter.OnlyViolations {
		query += ` AND is_violation`
	}
	if filter.Severity != "" {
		query += ` AND severity = ` + arg(string(filter.Severity))
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ` + arg(filter.Since)
	}
	if !filter.Until.IsZero() {
		query += ` AND timestamp < ` + arg(filter.Until)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w: %w", sentinel.ErrUnavailable, err)
	}
	return count, nil
}

// DistinctUsers returns the number of distinct acting users in [since, until).
func (s *Store) DistinctUsers(ctx context.Context, since, until time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT user_id) FROM audit_events WHERE timestamp >= $1`
	args := []any{since}
	if !until.IsZero() {
		query += ` AND timestamp < $2`
		args = append(args, until)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count distinct users: %w: %w", sentinel.ErrUnavailable, err)
	}
	return count, nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			eventType string
			userRole  string
			severity  string
			details   []byte
		)
		err := rows.Scan(
			&e.Seq,
			&e.ID,
			&e.Timestamp,
			&eventType,
			&e.UserID,
			&e.UserEmail,
			&userRole,
			&e.ResourceType,
			&e.ResourceID,
			&e.PatientID,
			&e.IPAddress,
			&details,
			&e.IsViolation,
			&severity,
			&e.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EventType = audit.EventType(eventType)
		e.UserRole = audit.Role(userRole)
		e.Severity = audit.Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nonNilDetails(details map[string]string) map[string]string {
	if details == nil {
		return map[string]string{}
	}
	return details
}
