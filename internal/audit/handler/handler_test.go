package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"phiguard/internal/audit"
	"phiguard/internal/audit/handler"
	"phiguard/internal/audit/handler/mocks"
	"phiguard/pkg/requestcontext"
)

type AuditHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	handler.New(s.service, logger).Register(s.router)
}

func (s *AuditHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuditHandlerSuite) post(body any, ctxFns ...func(context.Context) context.Context) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/audit/events", bytes.NewReader(raw))
	ctx := req.Context()
	for _, fn := range ctxFns {
		ctx = fn(ctx)
	}
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AuditHandlerSuite) body() handler.RecordEventRequest {
	return handler.RecordEventRequest{
		EventType:    "patient_view",
		UserID:       "doc-1",
		UserEmail:    "doc-1@clinic.example",
		UserRole:     "doctor",
		ResourceType: "patient",
		ResourceID:   "P001",
		PatientID:    "P001",
		IPAddress:    "10.0.0.5",
		Authorized:   true,
	}
}

func (s *AuditHandlerSuite) TestRecordSuccess() {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s.service.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in audit.RecordInput) (*audit.Event, error) {
			s.Equal(audit.EventPatientView, in.EventType)
			s.Equal("doc-1", in.UserID)
			s.True(in.Authorized)
			return &audit.Event{
				ID:           "evt-1",
				Seq:          1,
				Timestamp:    now,
				EventType:    in.EventType,
				UserID:       in.UserID,
				UserEmail:    in.UserEmail,
				UserRole:     in.UserRole,
				ResourceType: in.ResourceType,
				ResourceID:   in.ResourceID,
				PatientID:    in.PatientID,
				IPAddress:    in.IPAddress,
			}, nil
		})

	rec := s.post(s.body())
	s.Equal(http.StatusCreated, rec.Code)

	var resp handler.EventResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("evt-1", resp.ID)
	s.False(resp.IsViolation)
	s.Empty(resp.Severity)
}

func (s *AuditHandlerSuite) TestRecordViolationVerdictInResponse() {
	s.service.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(&audit.Event{
			ID:          "evt-2",
			Timestamp:   time.Now().UTC(),
			EventType:   audit.EventPatientView,
			UserID:      "pat-1",
			UserRole:    audit.RolePatient,
			IsViolation: true,
			Severity:    audit.SeverityCritical,
			Reason:      "cross-patient access",
			Details:     map[string]string{"violation_rule": "cross_patient_access"},
		}, nil)

	body := s.body()
	body.UserRole = "patient"
	rec := s.post(body)
	s.Equal(http.StatusCreated, rec.Code)

	var resp handler.EventResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.IsViolation)
	s.Equal("critical", resp.Severity)
	s.Equal("cross_patient_access", resp.Details["violation_rule"])
}

func (s *AuditHandlerSuite) TestValidationFailure() {
	body := s.body()
	body.EventType = "page_load"

	rec := s.post(body)
	s.Equal(http.StatusBadRequest, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("validation_error", resp["error"])
	s.Contains(resp["error_description"], "event type")
}

func (s *AuditHandlerSuite) TestMalformedJSON() {
	req := httptest.NewRequest(http.MethodPost, "/audit/events", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *AuditHandlerSuite) TestLedgerFailureMapsToServiceUnavailable() {
	s.service.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: disk full", audit.ErrRecordingFailed))

	rec := s.post(s.body())
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("unavailable", resp["error"])
	s.Contains(resp["error_description"], "deny the access")
}

func (s *AuditHandlerSuite) TestClientIPDefaultsFromContext() {
	s.service.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in audit.RecordInput) (*audit.Event, error) {
			s.Equal("192.0.2.7", in.IPAddress)
			return &audit.Event{ID: "evt-3", Timestamp: time.Now().UTC()}, nil
		})

	body := s.body()
	body.IPAddress = ""
	rec := s.post(body, func(ctx context.Context) context.Context {
		return requestcontext.WithClientIP(ctx, "192.0.2.7")
	})
	s.Equal(http.StatusCreated, rec.Code)
}
