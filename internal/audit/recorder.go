package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"phiguard/internal/platform/metrics"
)

// AlertDispatcher receives critical and high severity violations. Dispatch
// must not block: implementations enqueue and deliver on their own worker.
type AlertDispatcher interface {
	Dispatch(event Event)
}

// Recorder is the single call site every PHI-touching operation must invoke.
// It enriches the access description, runs the rule engine, persists the
// verdict and hands severe violations to the alert dispatcher.
type Recorder struct {
	store   Store
	engine  *Engine
	alerts  AlertDispatcher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	retryBackoff time.Duration

	// Rule evaluation and append are serialized per acting user so two
	// concurrent accesses near a threshold boundary cannot both read
	// pre-threshold counts and escape detection. Locks are refcounted and
	// dropped from the map when the last holder releases, so the map only
	// holds users with an in-flight record.
	mu        sync.Mutex
	userLocks map[string]*userLock

	now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithAlertDispatcher wires the dispatcher for critical/high violations.
func WithAlertDispatcher(d AlertDispatcher) RecorderOption {
	return func(r *Recorder) { r.alerts = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithRetryBackoff overrides the delay before the single append retry.
func WithRetryBackoff(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.retryBackoff = d }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder builds a Recorder over the given store and rule configuration.
func NewRecorder(store Store, cfg RuleConfig, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		retryBackoff: 100 * time.Millisecond,
		userLocks:    make(map[string]*userLock),
		tracer:       otel.Tracer("phiguard/audit"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = NewEngine(store, cfg, r.logger)
	return r
}

// Record validates the access description, classifies it and commits it to
// the ledger. The returned event carries the verdict so the caller can deny
// the underlying action on a critical violation.
//
// The commit happens under a context detached from cancellation: once the
// access has happened, auditing it is not cancellable. A terminal persistence
// failure is surfaced as ErrRecordingFailed and integrators must treat it as
// fail-closed for new PHI disclosure.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "audit.record")
	defer span.End()

	event := Event{
		ID:           uuid.NewString(),
		Timestamp:    r.now().UTC(),
		EventType:    in.EventType,
		UserID:       in.UserID,
		UserEmail:    in.UserEmail,
		UserRole:     in.UserRole,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		PatientID:    in.PatientID,
		IPAddress:    in.IPAddress,
		Details:      in.Details,
	}

	lock := r.acquireUserLock(in.UserID)
	defer r.releaseUserLock(in.UserID, lock)

	start := r.now()
	verdict := r.engine.Evaluate(ctx, Candidate{
		Event:         event,
		UserPatientID: in.UserPatientID,
		Authorized:    in.Authorized,
	})
	if r.metrics != nil {
		r.metrics.ObserveRuleEval(time.Since(start))
	}

	if verdict.IsViolation {
		event.IsViolation = true
		event.Severity = verdict.Severity
		event.Reason = verdict.Reason
		// Stamp the triggering rule without aliasing the caller's map.
		details := make(map[string]string, len(in.Details)+1)
		for k, v := range in.Details {
			details[k] = v
		}
		details["violation_rule"] = string(verdict.Rule)
		event.Details = details
	}

	// The access already happened; the record must survive request
	// cancellation.
	commitCtx := context.WithoutCancel(ctx)
	if err := r.append(commitCtx, &event); err != nil {
		if r.metrics != nil {
			r.metrics.RecordFailures.Inc()
		}
		if r.logger != nil {
			r.logger.ErrorContext(commitCtx, "audit event lost after retry",
				"event_id", event.ID,
				"event_type", event.EventType,
				"user_id", event.UserID,
				"error", err,
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrRecordingFailed, err)
	}

	if r.metrics != nil {
		r.metrics.EventsRecorded.Inc()
	}
	r.logOutcome(commitCtx, &event)

	if event.IsViolation && (event.Severity == SeverityCritical || event.Severity == SeverityHigh) {
		if r.metrics != nil {
			r.metrics.AlertsEnqueued.Inc()
		}
		if r.alerts != nil {
			r.alerts.Dispatch(event)
		}
	}

	return &event, nil
}

// append writes the event, retrying once after a backoff on storage failure.
func (r *Recorder) append(ctx context.Context, event *Event) error {
	err := r.store.Append(ctx, event)
	if err == nil {
		return nil
	}
	if r.metrics != nil {
		r.metrics.AppendRetries.Inc()
	}
	if r.logger != nil {
		r.logger.WarnContext(ctx, "audit append failed, retrying",
			"event_id", event.ID,
			"error", err,
		)
	}
	time.Sleep(r.retryBackoff)
	return r.store.Append(ctx, event)
}

func (r *Recorder) logOutcome(ctx context.Context, event *Event) {
	if event.IsViolation {
		if r.metrics != nil {
			r.metrics.IncViolation(string(event.Severity))
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "HIPAA violation detected",
				"event_id", event.ID,
				"severity", event.Severity,
				"reason", event.Reason,
				"user_email", event.UserEmail,
			)
		}
		return
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, "audit event recorded",
			"event_id", event.ID,
			"event_type", event.EventType,
			"user_email", event.UserEmail,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
		)
	}
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (r *Recorder) acquireUserLock(userID string) *userLock {
	r.mu.Lock()
	lock, ok := r.userLocks[userID]
	if !ok {
		lock = &userLock{}
		r.userLocks[userID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (r *Recorder) releaseUserLock(userID string, lock *userLock) {
	lock.mu.Unlock()

	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.userLocks, userID)
	}
	r.mu.Unlock()
}
