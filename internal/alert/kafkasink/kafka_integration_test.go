//go:build integration

package kafkasink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"phiguard/internal/alert/kafkasink"
	"phiguard/internal/audit"
	"phiguard/pkg/testutil/containers"
)

const testTopic = "phiguard.alerts"

type KafkaSinkSuite struct {
	suite.Suite
	ctx      context.Context
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
	sink     *kafkasink.Sink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redpanda = containers.NewRedpandaContainer(s.T())

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	s.client = client

	admin := kadm.NewClient(client)
	_, err = admin.CreateTopics(s.ctx, 1, 1, nil, testTopic)
	s.Require().NoError(err)

	s.sink = kafkasink.NewWithClient(client, testTopic)
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *KafkaSinkSuite) TestDeliverProducesKeyedRecord() {
	event := audit.Event{
		ID:           "evt-1",
		Timestamp:    time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		EventType:    audit.EventPatientView,
		UserID:       "doc-1",
		UserEmail:    "doc-1@clinic.example",
		UserRole:     audit.RoleDoctor,
		ResourceType: "patient",
		PatientID:    "P001",
		IsViolation:  true,
		Severity:     audit.SeverityCritical,
		Reason:       "cross-patient access",
		Details:      map[string]string{"violation_rule": "cross_patient_access"},
	}

	s.Equal("kafka", s.sink.Name())
	s.Require().NoError(s.sink.Deliver(s.ctx, event))

	fetchCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	fetches := s.client.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("doc-1", string(records[0].Key))

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal("evt-1", payload["event_id"])
	s.Equal("critical", payload["severity"])
	s.Equal("cross-patient access", payload["reason"])
}
