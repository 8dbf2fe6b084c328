// Package report provides read-only views over the audit ledger for
// dashboards and compliance review. Nothing in this package can mutate the
// event store.
package report

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"phiguard/internal/audit"
	dErrors "phiguard/pkg/domain-errors"
)

const (
	defaultLogLimit       = 100
	defaultViolationLimit = 50
	defaultActivityLimit  = 50
)

// Summary aggregates the ledger for the compliance dashboard. "Today" is
// computed in the service's reporting timezone, never server wall-clock
// location.
type Summary struct {
	TotalEvents     int
	TodayEvents     int
	TotalViolations int
	TodayViolations int
	// ViolationsBySeverity always carries all four severities, zero-valued
	// when absent.
	ViolationsBySeverity map[audit.Severity]int
	UniqueUsersToday     int
}

// Service reads the audit ledger. All operations are pure reads and tolerate
// concurrent writers; snapshot-at-read consistency is sufficient.
type Service struct {
	store       audit.Store
	reportingTZ *time.Location
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewService builds a reporting service anchored to the given reporting
// timezone.
func NewService(store audit.Store, reportingTZ *time.Location, logger *slog.Logger) *Service {
	if reportingTZ == nil {
		reportingTZ = time.UTC
	}
	return &Service{
		store:       store,
		reportingTZ: reportingTZ,
		logger:      logger,
		tracer:      otel.Tracer("phiguard/report"),
	}
}

// Summary computes dashboard statistics as of the given instant. Counts are
// gathered in parallel; each count sees its own read snapshot, which is
// acceptable for reporting.
func (s *Service) Summary(ctx context.Context, asOf time.Time) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "report.summary")
	defer span.End()

	local := asOf.In(s.reportingTZ)
	todayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.reportingTZ)

	summary := &Summary{}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.store.Count(ctx, audit.ListFilter{})
		summary.TotalEvents = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(ctx, audit.ListFilter{Since: todayStart})
		summary.TodayEvents = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(ctx, audit.ListFilter{OnlyViolations: true})
		summary.TotalViolations = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(ctx, audit.ListFilter{OnlyViolations: true, Since: todayStart})
		summary.TodayViolations = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.DistinctUsers(ctx, todayStart, time.Time{})
		summary.UniqueUsersToday = n
		return err
	})
	severities := []audit.Severity{
		audit.SeverityCritical, audit.SeverityHigh, audit.SeverityMedium, audit.SeverityLow,
	}
	// Each goroutine writes only its own slot; the map is assembled after Wait
	// because map assignment is not safe across goroutines.
	severityCounts := make([]int, len(severities))
	for i, severity := range severities {
		g.Go(func() error {
			n, err := s.store.Count(ctx, audit.ListFilter{OnlyViolations: true, Severity: severity})
			severityCounts[i] = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unavailable", err)
	}

	summary.ViolationsBySeverity = make(map[audit.Severity]int, len(severities))
	for i, severity := range severities {
		summary.ViolationsBySeverity[severity] = severityCounts[i]
	}
	return summary, nil
}

// Violations returns violation events newest first, optionally filtered to a
// single severity.
func (s *Service) Violations(ctx context.Context, limit, offset int, severity audit.Severity) ([]audit.Event, error) {
	if limit <= 0 {
		limit = defaultViolationLimit
	}
	events, err := s.store.List(ctx, audit.ListFilter{
		OnlyViolations: true,
		Severity:       severity,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unavailable", err)
	}
	return events, nil
}

// LogFilter narrows the full audit log view.
type LogFilter struct {
	UserID    string
	PatientID string
	EventType audit.EventType
	Since     time.Time
	Until     time.Time
}

// AuditLog returns the full audit log newest first.
func (s *Service) AuditLog(ctx context.Context, limit, offset int, filter LogFilter) ([]audit.Event, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	events, err := s.store.List(ctx, audit.ListFilter{
		UserID:    filter.UserID,
		PatientID: filter.PatientID,
		EventType: filter.EventType,
		Since:     filter.Since,
		Until:     filter.Until,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unavailable", err)
	}
	return events, nil
}

// PatientAccessLog returns every access to one patient's PHI, newest first.
// Clinicians use this view to review who touched their patients' records.
func (s *Service) PatientAccessLog(ctx context.Context, patientID string, limit int) ([]audit.Event, error) {
	if patientID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "patient_id is required")
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	events, err := s.store.List(ctx, audit.ListFilter{PatientID: patientID, Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unavailable", err)
	}
	return events, nil
}

// UserActivity returns one user's activity newest first, used when
// investigating suspicious behavior.
func (s *Service) UserActivity(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	events, err := s.store.List(ctx, audit.ListFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "audit store unavailable", err)
	}
	return events, nil
}
