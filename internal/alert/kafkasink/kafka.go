// Package kafkasink publishes violation alerts to a Kafka topic so downstream
// SIEM and paging consumers can subscribe independently.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"phiguard/internal/audit"
)

// Sink produces one record per violation, keyed by acting user so a single
// user's violations stay ordered within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects a Kafka producer for the given brokers and topic.
func New(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// NewWithClient wraps an existing client, used by integration tests.
func NewWithClient(client *kgo.Client, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

func (s *Sink) Name() string { return "kafka" }

type record struct {
	EventID      string            `json:"event_id"`
	Timestamp    string            `json:"timestamp"`
	EventType    string            `json:"event_type"`
	UserID       string            `json:"user_id"`
	UserEmail    string            `json:"user_email"`
	UserRole     string            `json:"user_role"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PatientID    string            `json:"patient_id,omitempty"`
	Severity     string            `json:"severity"`
	Reason       string            `json:"reason"`
	Details      map[string]string `json:"details,omitempty"`
}

// Deliver produces the alert record synchronously.
func (s *Sink) Deliver(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(record{
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
		Details:      event.Details,
	})
	if err != nil {
		return fmt.Errorf("marshal alert record: %w", err)
	}

	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.UserID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce alert record: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (s *Sink) Close() {
	s.client.Close()
}
