package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RuleName identifies a violation rule in verdicts and alert payloads.
type RuleName string

const (
	RuleCrossPatient     RuleName = "cross_patient_access"
	RuleBulkAccess       RuleName = "bulk_data_access"
	RuleUnauthorized     RuleName = "unauthorized_access"
	RuleExcessiveQueries RuleName = "excessive_queries"
	RuleAfterHours       RuleName = "after_hours_access"
)

// rulePriority fixes the tie-break order when multiple rules match at the
// same severity. It also happens to be sorted by severity, so a single pass
// in this order yields the highest-severity, earliest-priority match.
var rulePriority = []RuleName{
	RuleCrossPatient,
	RuleBulkAccess,
	RuleUnauthorized,
	RuleExcessiveQueries,
	RuleAfterHours,
}

var ruleSeverity = map[RuleName]Severity{
	RuleCrossPatient:     SeverityCritical,
	RuleBulkAccess:       SeverityHigh,
	RuleUnauthorized:     SeverityHigh,
	RuleExcessiveQueries: SeverityMedium,
	RuleAfterHours:       SeverityLow,
}

// RuleConfig carries the thresholds and clinic clock the rules evaluate
// against. All windows are trailing windows ending at the candidate event.
type RuleConfig struct {
	ClinicTimezone     *time.Location
	BusinessHoursStart int // inclusive
	BusinessHoursEnd   int // exclusive

	MaxAccessPerHour    int
	BulkAccessThreshold int
	BulkAccessWindow    time.Duration
	ExcessiveWindow     time.Duration
}

// DefaultRuleConfig mirrors the clinic's standing HIPAA monitoring policy.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		ClinicTimezone:      time.UTC,
		BusinessHoursStart:  7,
		BusinessHoursEnd:    19,
		MaxAccessPerHour:    20,
		BulkAccessThreshold: 10,
		BulkAccessWindow:    10 * time.Minute,
		ExcessiveWindow:     time.Hour,
	}
}

// Candidate is a fully-populated event awaiting its verdict, together with
// the caller-supplied facts that are not part of the persisted record.
type Candidate struct {
	Event
	// UserPatientID is the acting user's own linked patient record.
	UserPatientID string
	// Authorized is the caller's own authorization check outcome.
	Authorized bool
}

// Verdict is the rule engine's classification of one candidate event.
type Verdict struct {
	IsViolation bool
	Rule        RuleName
	Severity    Severity
	Reason      string
}

// rolePermissions lists the resource types each role may touch. The matrix
// only covers the resource types this deployment knows about; free-form
// resource types fall back to the caller's authorized flag.
var rolePermissions = map[Role]map[string]bool{
	RoleOwner: nil, // nil means every resource type
	RoleDoctor: {
		"patient":       true,
		"health_record": true,
		"appointment":   true,
		"chat":          true,
		"export":        true,
	},
	RolePatient: {
		"patient":       true,
		"health_record": true,
		"appointment":   true,
		"chat":          true,
	},
}

var knownResourceTypes = map[string]bool{
	"patient":       true,
	"health_record": true,
	"appointment":   true,
	"chat":          true,
	"export":        true,
	"audit":         true,
}

// Engine evaluates violation rules against the event store's recent history.
// It is stateless; all state needed for a decision is fetched per call.
type Engine struct {
	store  Store
	cfg    RuleConfig
	logger *slog.Logger
}

// NewEngine builds a rule engine reading history from store.
func NewEngine(store Store, cfg RuleConfig, logger *slog.Logger) *Engine {
	if cfg.ClinicTimezone == nil {
		cfg.ClinicTimezone = time.UTC
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Evaluate classifies the candidate. Rules are independent; when several
// match, the highest severity wins, ties broken by rulePriority. A rule that
// cannot be evaluated (missing field, unreadable history) does not match, so
// one broken rule can never block auditing.
func (e *Engine) Evaluate(ctx context.Context, c Candidate) Verdict {
	window := e.window(ctx, c)

	best := Verdict{}
	for _, name := range rulePriority {
		matched, reason := e.applyRule(name, c, window)
		if !matched {
			continue
		}
		severity := ruleSeverity[name]
		if !best.IsViolation || severity.rank() > best.Severity.rank() {
			best = Verdict{IsViolation: true, Rule: name, Severity: severity, Reason: reason}
		}
	}
	return best
}

func (e *Engine) applyRule(name RuleName, c Candidate, window []Event) (bool, string) {
	switch name {
	case RuleCrossPatient:
		return e.crossPatient(c)
	case RuleBulkAccess:
		return e.bulkAccess(c, window)
	case RuleUnauthorized:
		return e.unauthorized(c)
	case RuleExcessiveQueries:
		return e.excessiveQueries(c, window)
	case RuleAfterHours:
		return e.afterHours(c)
	}
	return false, ""
}

// window fetches the user's trailing history once, sized to the largest rule
// window. History-based rules slice it further. A read failure is logged and
// treated as empty history: those rules simply do not match for this event.
func (e *Engine) window(ctx context.Context, c Candidate) []Event {
	maxWindow := e.cfg.ExcessiveWindow
	if e.cfg.BulkAccessWindow > maxWindow {
		maxWindow = e.cfg.BulkAccessWindow
	}
	events, err := e.store.RecentByUser(ctx, c.UserID, c.Timestamp.Add(-maxWindow))
	if err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "rule history read failed, window rules skipped",
				"user_id", c.UserID,
				"error", err,
			)
		}
		return nil
	}
	return events
}

// crossPatient flags a patient-role user reading another patient's record.
// Without a linked patient identifier the rule cannot be evaluated.
func (e *Engine) crossPatient(c Candidate) (bool, string) {
	if c.UserRole != RolePatient || c.PatientID == "" || c.UserPatientID == "" {
		return false, ""
	}
	if c.PatientID == c.UserPatientID {
		return false, ""
	}
	return true, fmt.Sprintf("cross-patient access: patient-role user linked to %s accessed records of %s",
		c.UserPatientID, c.PatientID)
}

// bulkAccess counts distinct patients touched in the trailing bulk window,
// inclusive of the candidate event.
func (e *Engine) bulkAccess(c Candidate, window []Event) (bool, string) {
	if c.PatientID == "" {
		return false, ""
	}
	cutoff := c.Timestamp.Add(-e.cfg.BulkAccessWindow)
	patients := map[string]bool{c.PatientID: true}
	for _, ev := range window {
		if ev.PatientID != "" && !ev.Timestamp.Before(cutoff) {
			patients[ev.PatientID] = true
		}
	}
	if len(patients) < e.cfg.BulkAccessThreshold {
		return false, ""
	}
	return true, fmt.Sprintf("bulk data access: %d distinct patients accessed in %d minutes",
		len(patients), int(e.cfg.BulkAccessWindow.Minutes()))
}

// unauthorized flags accesses whose caller-side authorization failed, or
// whose role has no business touching the resource type.
func (e *Engine) unauthorized(c Candidate) (bool, string) {
	if !c.Authorized {
		return true, fmt.Sprintf("unauthorized access: caller authorization failed for %s %s",
			c.ResourceType, c.ResourceID)
	}
	allowed := rolePermissions[c.UserRole]
	if allowed == nil {
		return false, ""
	}
	if knownResourceTypes[c.ResourceType] && !allowed[c.ResourceType] {
		return true, fmt.Sprintf("unauthorized access: role %s lacks permission for resource type %s",
			c.UserRole, c.ResourceType)
	}
	return false, ""
}

// excessiveQueries counts PHI accesses in the trailing window, inclusive of
// the candidate event.
func (e *Engine) excessiveQueries(c Candidate, window []Event) (bool, string) {
	if c.PatientID == "" {
		return false, ""
	}
	cutoff := c.Timestamp.Add(-e.cfg.ExcessiveWindow)
	count := 1 // the candidate itself
	for _, ev := range window {
		if ev.PatientID != "" && !ev.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count <= e.cfg.MaxAccessPerHour {
		return false, ""
	}
	return true, fmt.Sprintf("excessive queries: %d PHI accesses in %d minutes",
		count, int(e.cfg.ExcessiveWindow.Minutes()))
}

// afterHours flags PHI reads outside clinic hours. The boundary is inclusive
// at opening and exclusive at closing: 07:00 is in hours, 06:59 and 19:00
// are not.
func (e *Engine) afterHours(c Candidate) (bool, string) {
	if !c.EventType.IsPHIRead() {
		return false, ""
	}
	local := c.Timestamp.In(e.cfg.ClinicTimezone)
	hour := local.Hour()
	if hour >= e.cfg.BusinessHoursStart && hour < e.cfg.BusinessHoursEnd {
		return false, ""
	}
	return true, fmt.Sprintf("after-hours access: PHI read at %s outside clinic hours %02d:00-%02d:00",
		local.Format("15:04"), e.cfg.BusinessHoursStart, e.cfg.BusinessHoursEnd)
}
