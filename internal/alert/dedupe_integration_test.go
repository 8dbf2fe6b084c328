//go:build integration

package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"phiguard/internal/alert"
	"phiguard/pkg/testutil/containers"
)

type RedisDeduperSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
}

func TestRedisDeduperSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisDeduperSuite))
}

func (s *RedisDeduperSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisDeduperSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisDeduperSuite) TestFirstSendClaimsTheSlot() {
	deduper := alert.NewRedisDeduper(s.redis.Client, time.Minute)

	send, err := deduper.ShouldSend(s.ctx, "doc-1:bulk_data_access")
	s.Require().NoError(err)
	s.True(send)

	send, err = deduper.ShouldSend(s.ctx, "doc-1:bulk_data_access")
	s.Require().NoError(err)
	s.False(send)

	// Different rule or user is an independent slot.
	send, err = deduper.ShouldSend(s.ctx, "doc-1:after_hours_access")
	s.Require().NoError(err)
	s.True(send)

	send, err = deduper.ShouldSend(s.ctx, "doc-2:bulk_data_access")
	s.Require().NoError(err)
	s.True(send)
}

func (s *RedisDeduperSuite) TestWindowExpiry() {
	deduper := alert.NewRedisDeduper(s.redis.Client, 500*time.Millisecond)

	send, err := deduper.ShouldSend(s.ctx, "doc-1:bulk_data_access")
	s.Require().NoError(err)
	s.True(send)

	time.Sleep(700 * time.Millisecond)

	send, err = deduper.ShouldSend(s.ctx, "doc-1:bulk_data_access")
	s.Require().NoError(err)
	s.True(send)
}

func (s *RedisDeduperSuite) TestSlotsShareAcrossInstances() {
	// Two replicas pointing at the same Redis must agree on suppression.
	first := alert.NewRedisDeduper(s.redis.Client, time.Minute)
	second := alert.NewRedisDeduper(s.redis.Client, time.Minute)

	send, err := first.ShouldSend(s.ctx, "doc-1:cross_patient_access")
	s.Require().NoError(err)
	s.True(send)

	send, err = second.ShouldSend(s.ctx, "doc-1:cross_patient_access")
	s.Require().NoError(err)
	s.False(send)
}
