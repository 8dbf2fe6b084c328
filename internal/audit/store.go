package audit

import (
	"context"
	"time"
)

// Store is the append-only audit ledger. Implementations expose no update or
// delete operation at any layer; that absence is a design contract, not an
// unimplemented method.
//
// Append must be safe under concurrent callers and must assign a
// monotonically increasing sequence, because wall-clock timestamps from
// concurrent writers are not strictly ordered.
type Store interface {
	// Append durably persists the event and fills in its Seq. Returns a
	// sentinel.ErrUnavailable-wrapped error when the backing store is down.
	Append(ctx context.Context, event *Event) error

	// RecentByUser returns the user's events with Timestamp >= since, in
	// chronological ascending order.
	RecentByUser(ctx context.Context, userID string, since time.Time) ([]Event, error)

	// RecentByPatient returns events touching the given patient with
	// Timestamp >= since, in chronological ascending order.
	RecentByPatient(ctx context.Context, patientID string, since time.Time) ([]Event, error)

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Event, error)

	// Count returns the number of events matching the filter, ignoring
	// Limit and Offset.
	Count(ctx context.Context, filter ListFilter) (int, error)

	// DistinctUsers returns the number of distinct acting users with at
	// least one event in [since, until).
	DistinctUsers(ctx context.Context, since, until time.Time) (int, error)
}

// ListFilter selects a reporting slice of the ledger. Zero values mean
// "no constraint"; Limit <= 0 falls back to the implementation default.
type ListFilter struct {
	UserID         string
	PatientID      string
	EventType      EventType
	OnlyViolations bool
	Severity       Severity
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// Matches reports whether an event satisfies the filter, shared by in-memory
// filtering and tests.
func (f ListFilter) Matches(e Event) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.PatientID != "" && e.PatientID != f.PatientID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.OnlyViolations && !e.IsViolation {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
