package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"phiguard/internal/audit"
	"phiguard/internal/report"
	"phiguard/pkg/platform/httputil"
)

// Service defines the reporting operations the compliance endpoints expose.
type Service interface {
	Summary(ctx context.Context, asOf time.Time) (*report.Summary, error)
	Violations(ctx context.Context, limit, offset int, severity audit.Severity) ([]audit.Event, error)
	AuditLog(ctx context.Context, limit, offset int, filter report.LogFilter) ([]audit.Event, error)
	PatientAccessLog(ctx context.Context, patientID string, limit int) ([]audit.Event, error)
	UserActivity(ctx context.Context, userID string, limit int) ([]audit.Event, error)
}

// Handler wires the compliance review endpoints to the reporting service.
// Mount behind an owner-role gate: these views expose every user's PHI
// access history.
type Handler struct {
	service Service
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a compliance handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, now: time.Now}
}

// Register mounts the compliance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/compliance/summary", h.HandleSummary)
	r.Get("/compliance/violations", h.HandleViolations)
	r.Get("/compliance/audit-log", h.HandleAuditLog)
	r.Get("/compliance/patient/{patientID}/access-log", h.HandlePatientAccessLog)
	r.Get("/compliance/user/{userID}/activity", h.HandleUserActivity)
}

// HandleSummary handles GET /compliance/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.service.Summary(ctx, h.now())
	if err != nil {
		h.logger.ErrorContext(ctx, "summary failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSummary(summary, h.now()))
}

// HandleViolations handles GET /compliance/violations?severity=&limit=&offset=.
func (h *Handler) HandleViolations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	var severity audit.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		parsed, err := audit.ParseSeverity(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		severity = parsed
	}

	events, err := h.service.Violations(ctx, limit, offset, severity)
	if err != nil {
		h.logger.ErrorContext(ctx, "violations query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ViolationsResponse{
		Violations: mapEvents(events, FromViolation),
		Total:      len(events),
	})
}

// HandleAuditLog handles GET /compliance/audit-log with optional user_id,
// patient_id and event_type filters.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)
	q := r.URL.Query()

	events, err := h.service.AuditLog(ctx, limit, offset, report.LogFilter{
		UserID:    q.Get("user_id"),
		PatientID: q.Get("patient_id"),
		EventType: audit.EventType(q.Get("event_type")),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "audit log query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditLogResponse{
		Events: mapEvents(events, FromLogEntry),
		Total:  len(events),
	})
}

// HandlePatientAccessLog handles GET /compliance/patient/{patientID}/access-log.
func (h *Handler) HandlePatientAccessLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, _ := pagination(r)
	patientID := chi.URLParam(r, "patientID")

	events, err := h.service.PatientAccessLog(ctx, patientID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "patient access log query failed", "patient_id", patientID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PatientAccessLogResponse{
		PatientID:    patientID,
		AccessEvents: mapEvents(events, FromAccessEntry),
		Total:        len(events),
	})
}

// HandleUserActivity handles GET /compliance/user/{userID}/activity.
func (h *Handler) HandleUserActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, _ := pagination(r)
	userID := chi.URLParam(r, "userID")

	events, err := h.service.UserActivity(ctx, userID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "user activity query failed", "user_id", userID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UserActivityResponse{
		UserID:   userID,
		Activity: mapEvents(events, FromActivityEntry),
		Total:    len(events),
	})
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

func mapEvents[T any](events []audit.Event, convert func(audit.Event) T) []T {
	out := make([]T, 0, len(events))
	for _, e := range events {
		out = append(out, convert(e))
	}
	return out
}
