package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"phiguard/internal/platform/config"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := config.FromEnv()
	s.Require().NoError(err)

	s.Equal(":8080", cfg.Addr)
	s.Empty(cfg.PostgresDSN)
	s.Equal(time.UTC, cfg.Audit.ClinicTimezone)
	s.Equal(time.UTC, cfg.Audit.ReportingTimezone)
	s.Equal(7, cfg.Audit.BusinessHoursStart)
	s.Equal(19, cfg.Audit.BusinessHoursEnd)
	s.Equal(20, cfg.Audit.MaxAccessPerHour)
	s.Equal(10, cfg.Audit.BulkAccessThreshold)
	s.Equal(10*time.Minute, cfg.Audit.BulkAccessWindow)
	s.Equal(time.Hour, cfg.Audit.ExcessiveWindow)
	s.Equal(6, cfg.Audit.RetentionYears)
	s.Equal("phiguard.violations", cfg.Alert.KafkaTopic)
	s.Equal(15*time.Minute, cfg.Alert.DedupeWindow)
}

func (s *ConfigSuite) TestOverrides() {
	s.T().Setenv("PHIGUARD_ADDR", ":9090")
	s.T().Setenv("POSTGRES_DSN", "postgres://audit:audit@db/phiguard")
	s.T().Setenv("CLINIC_TIMEZONE", "America/New_York")
	s.T().Setenv("BUSINESS_HOURS_START", "8")
	s.T().Setenv("BULK_ACCESS_THRESHOLD", "25")
	s.T().Setenv("BULK_ACCESS_WINDOW", "5m")
	s.T().Setenv("ALERT_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := config.FromEnv()
	s.Require().NoError(err)

	s.Equal(":9090", cfg.Addr)
	s.Equal("postgres://audit:audit@db/phiguard", cfg.PostgresDSN)
	s.Equal("America/New_York", cfg.Audit.ClinicTimezone.String())
	s.Equal(8, cfg.Audit.BusinessHoursStart)
	s.Equal(25, cfg.Audit.BulkAccessThreshold)
	s.Equal(5*time.Minute, cfg.Audit.BulkAccessWindow)
	s.Equal([]string{"broker-1:9092", "broker-2:9092"}, cfg.Alert.KafkaBrokers)
}

func (s *ConfigSuite) TestMalformedValuesFallBack() {
	s.T().Setenv("BULK_ACCESS_THRESHOLD", "lots")
	s.T().Setenv("EXCESSIVE_QUERY_WINDOW", "soon")

	cfg, err := config.FromEnv()
	s.Require().NoError(err)
	s.Equal(10, cfg.Audit.BulkAccessThreshold)
	s.Equal(time.Hour, cfg.Audit.ExcessiveWindow)
}

func (s *ConfigSuite) TestUnknownTimezoneFails() {
	s.T().Setenv("CLINIC_TIMEZONE", "Mars/Olympus_Mons")

	_, err := config.FromEnv()
	s.Require().Error(err)
	s.Contains(err.Error(), "CLINIC_TIMEZONE")
}
