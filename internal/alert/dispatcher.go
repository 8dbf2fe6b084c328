// Package alert delivers high-severity violation notifications to external
// channels. Delivery is decoupled from the audit-write path: Dispatch only
// enqueues, a background worker drains the queue, and failures are logged,
// never propagated back to the recorder.
package alert

import (
	"context"
	"log/slog"
	"time"

	"phiguard/internal/audit"
	"phiguard/internal/platform/metrics"
)

// Sink is a pluggable notification channel (webhook, Kafka topic, email
// bridge). Deliver should return promptly; the dispatcher owns retries.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event audit.Event) error
}

// Config bounds the dispatcher's queue and retry behavior.
type Config struct {
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Dispatcher fans violation events out to its sinks from a background
// worker. A full queue drops the alert (counted and logged) rather than
// blocking the audit path; the violation itself is already durably recorded.
type Dispatcher struct {
	queue   chan audit.Event
	sinks   []Sink
	dedupe  Deduper
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxAttempts  int
	retryBackoff time.Duration
	breakers     map[string]*circuitBreaker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeduper suppresses repeat alerts for the same user and rule.
func WithDeduper(d Deduper) Option {
	return func(disp *Dispatcher) { disp.dedupe = d }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// NewDispatcher builds a dispatcher over the given sinks.
func NewDispatcher(cfg Config, logger *slog.Logger, sinks []Sink, opts ...Option) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	d := &Dispatcher{
		queue:        make(chan audit.Event, cfg.QueueSize),
		sinks:        sinks,
		logger:       logger,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		breakers:     make(map[string]*circuitBreaker),
	}
	for _, sink := range sinks {
		d.breakers[sink.Name()] = newCircuitBreaker(5, time.Minute)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch enqueues a violation for delivery. Never blocks.
func (d *Dispatcher) Dispatch(event audit.Event) {
	select {
	case d.queue <- event:
	default:
		if d.metrics != nil {
			d.metrics.AlertsDropped.Inc()
		}
		if d.logger != nil {
			d.logger.Error("alert queue full, alert dropped",
				"event_id", event.ID,
				"severity", event.Severity,
			)
		}
	}
}

// Run drains the queue until the context is cancelled. Call it on its own
// goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event audit.Event) {
	if d.dedupe != nil {
		send, err := d.dedupe.ShouldSend(ctx, dedupeKey(event))
		if err != nil {
			// A broken dedupe store must not silence alerts.
			if d.logger != nil {
				d.logger.Warn("alert dedupe check failed, sending anyway", "error", err)
			}
		} else if !send {
			if d.metrics != nil {
				d.metrics.AlertsSuppressed.Inc()
			}
			return
		}
	}

	for _, sink := range d.sinks {
		d.deliverTo(ctx, sink, event)
	}
}

func (d *Dispatcher) deliverTo(ctx context.Context, sink Sink, event audit.Event) {
	breaker := d.breakers[sink.Name()]
	if !breaker.allow() {
		if d.metrics != nil {
			d.metrics.AlertsDropped.Inc()
		}
		if d.logger != nil {
			d.logger.Warn("alert sink circuit open, alert dropped",
				"sink", sink.Name(),
				"event_id", event.ID,
			)
		}
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := sink.Deliver(ctx, event); err == nil {
			breaker.recordSuccess()
			if d.metrics != nil {
				d.metrics.AlertsDelivered.Inc()
			}
			return
		} else {
			lastErr = err
		}
		if attempt < d.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryBackoff * time.Duration(attempt)):
			}
		}
	}

	breaker.recordFailure()
	if d.metrics != nil {
		d.metrics.AlertsDropped.Inc()
	}
	if d.logger != nil {
		d.logger.Error("alert delivery failed permanently",
			"sink", sink.Name(),
			"event_id", event.ID,
			"severity", event.Severity,
			"attempts", d.maxAttempts,
			"error", lastErr,
		)
	}
}

// dedupeKey groups alerts by acting user and triggering rule. The rule name
// travels in the event details; severity is the fallback grouping.
func dedupeKey(event audit.Event) string {
	rule := event.Details["violation_rule"]
	if rule == "" {
		rule = string(event.Severity)
	}
	return event.UserID + ":" + rule
}
