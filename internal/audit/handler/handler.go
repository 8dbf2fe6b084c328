package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"phiguard/internal/audit"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

// Service defines the recording operation the handler exposes.
type Service interface {
	Record(ctx context.Context, in audit.RecordInput) (*audit.Event, error)
}

// Handler wires the audit recording endpoint to the Recorder.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the recording endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/events", h.HandleRecord)
}

// HandleRecord handles POST /audit/events. Collaborator services call this
// synchronously before releasing PHI; a 503 response means the ledger could
// not be written and the caller must deny the underlying access.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RecordEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	input := req.ToInput()
	if input.IPAddress == "" {
		input.IPAddress = requestcontext.ClientIP(ctx)
	}

	event, err := h.service.Record(ctx, input)
	if err != nil {
		if errors.Is(err, audit.ErrRecordingFailed) {
			h.logger.ErrorContext(ctx, "audit recording failed",
				"request_id", requestID,
				"user_id", input.UserID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "audit ledger unavailable, deny the access", err))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit event recorded",
		"request_id", requestID,
		"event_id", event.ID,
		"is_violation", event.IsViolation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromEvent(event))
}
