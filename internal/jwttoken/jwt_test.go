package jwttoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"phiguard/internal/jwttoken"
	dErrors "phiguard/pkg/domain-errors"
)

type JWTSuite struct {
	suite.Suite
	service *jwttoken.Service
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTSuite))
}

func (s *JWTSuite) SetupTest() {
	s.service = jwttoken.New("test-signing-key", "phiguard")
}

func (s *JWTSuite) TestGenerateAndValidate() {
	token, err := s.service.Generate("user-1", "doc@clinic.example", "doctor", "", time.Hour)
	s.Require().NoError(err)

	claims, err := s.service.Validate(token)
	s.Require().NoError(err)
	s.Equal("user-1", claims.Subject)
	s.Equal("doc@clinic.example", claims.Email)
	s.Equal("doctor", claims.Role)
	s.Empty(claims.PatientID)
	s.Equal("phiguard", claims.Issuer)
	s.NotEmpty(claims.ID)
}

func (s *JWTSuite) TestPatientClaimsCarryLinkedRecord() {
	token, err := s.service.Generate("user-2", "pat@clinic.example", "patient", "P001", time.Hour)
	s.Require().NoError(err)

	claims, err := s.service.Validate(token)
	s.Require().NoError(err)
	s.Equal("patient", claims.Role)
	s.Equal("P001", claims.PatientID)
}

func (s *JWTSuite) TestExpiredToken() {
	token, err := s.service.Generate("user-1", "doc@clinic.example", "doctor", "", -time.Minute)
	s.Require().NoError(err)

	_, err = s.service.Validate(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal("token expired", dErrors.MessageOf(err))
}

func (s *JWTSuite) TestWrongSigningKey() {
	other := jwttoken.New("different-key", "phiguard")
	token, err := other.Generate("user-1", "doc@clinic.example", "doctor", "", time.Hour)
	s.Require().NoError(err)

	_, err = s.service.Validate(token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *JWTSuite) TestGarbageToken() {
	_, err := s.service.Validate("not.a.token")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
