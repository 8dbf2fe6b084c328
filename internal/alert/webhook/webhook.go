// Package webhook posts violation alerts to a configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"phiguard/internal/audit"
)

// Sink delivers alerts via HTTP POST. The payload is the event's summary; the
// receiving channel (pager bridge, chat hook, SIEM collector) is not this
// package's concern.
type Sink struct {
	url    string
	client *http.Client
}

// New creates a webhook sink for the given URL.
func New(url string) *Sink {
	return &Sink{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *Sink) Name() string { return "webhook" }

type payload struct {
	EventID      string `json:"event_id"`
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	UserID       string `json:"user_id"`
	UserEmail    string `json:"user_email"`
	UserRole     string `json:"user_role"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	PatientID    string `json:"patient_id,omitempty"`
	Severity     string `json:"severity"`
	Reason       string `json:"reason"`
}

// Deliver posts the alert. Non-2xx responses are delivery failures.
func (s *Sink) Deliver(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		EventID:      event.ID,
		Timestamp:    event.Timestamp.Format(time.RFC3339Nano),
		EventType:    string(event.EventType),
		UserID:       event.UserID,
		UserEmail:    event.UserEmail,
		UserRole:     string(event.UserRole),
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		PatientID:    event.PatientID,
		Severity:     string(event.Severity),
		Reason:       event.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post alert: unexpected status %d", resp.StatusCode)
	}
	return nil
}
