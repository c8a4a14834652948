package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"clinauth/internal/access"
	"clinauth/internal/access/cache"
	"clinauth/internal/access/guard"
	"clinauth/internal/audit"
	"clinauth/internal/clinical"
	"clinauth/internal/platform/middleware"
	"clinauth/pkg/domain"
	"clinauth/pkg/testutil"
)

const signingKey = "test-signing-key"

type APISuite struct {
	suite.Suite
	clock  *testutil.Clock
	store  *clinical.MemoryStore
	router http.Handler

	doctorID domain.SubjectID
	patient  access.Patient
	event    access.Event
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.clock = testutil.NewClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	s.store = clinical.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)

	rules := access.NewRuleset(s.clock)
	decisions := cache.New(cache.NewMemoryStore(s.clock), logger)
	cached := cache.WrapRules(rules, decisions)
	recorder := audit.NewRecorder(audit.NewMemorySink(), logger)
	g := guard.New(cached, s.store, s.store, recorder, logger)
	h := NewHandler(logger, cached, decisions, nil, s.store, s.store)
	s.router = NewRouter(h, g, []byte(signingKey))

	s.doctorID = domain.SubjectID(uuid.New())
	s.patient = access.Patient{ID: domain.PatientID(uuid.New()), Status: access.StatusInpatient}
	s.store.PutPatient(s.patient)
	s.event = access.Event{ID: domain.EventID(uuid.New()), CreatedBy: s.doctorID, CreatedAt: s.clock.Now().Add(-time.Hour), Type: "note"}
	s.store.PutEvent(s.event)
}

func (s *APISuite) token(id domain.SubjectID, profession access.Profession) string {
	claims := middleware.SubjectClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()},
		Profession:       string(profession),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	s.Require().NoError(err)
	return signed
}

func (s *APISuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) TestGetPatient() {
	token := s.token(domain.SubjectID(uuid.New()), access.ProfessionNurse)
	rec := s.do(http.MethodGet, "/patients/"+s.patient.ID.String(), token, nil)
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]string
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal(s.patient.ID.String(), body["id"])
	s.Equal("inpatient", body["status"])
}

func (s *APISuite) TestGetPatientWithoutToken() {
	rec := s.do(http.MethodGet, "/patients/"+s.patient.ID.String(), "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APISuite) TestGetPatientWithForgedToken() {
	claims := middleware.SubjectClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Profession:       "doctor",
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-key"))
	s.Require().NoError(err)

	rec := s.do(http.MethodGet, "/patients/"+s.patient.ID.String(), forged, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APISuite) TestStatusChange() {
	path := "/patients/" + s.patient.ID.String() + "/status"
	nurse := s.token(domain.SubjectID(uuid.New()), access.ProfessionNurse)
	doctor := s.token(s.doctorID, access.ProfessionDoctor)

	s.Run("nurse cannot discharge", func() {
		rec := s.do(http.MethodPost, path, nurse, statusChangeRequest{Status: "discharged"})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("nurse can set any other status", func() {
		rec := s.do(http.MethodPost, path, nurse, statusChangeRequest{Status: "outpatient"})
		s.Equal(http.StatusOK, rec.Code)
		updated, err := s.store.GetPatient(s.T().Context(), s.patient.ID)
		s.Require().NoError(err)
		s.Equal(access.StatusOutpatient, updated.Status)
	})

	s.Run("doctor can discharge", func() {
		rec := s.do(http.MethodPost, path, doctor, statusChangeRequest{Status: "discharged"})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("unknown status rejected", func() {
		rec := s.do(http.MethodPost, path, doctor, statusChangeRequest{Status: "waiting-room"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *APISuite) TestEventLifecycle() {
	path := "/events/" + s.event.ID.String()
	author := s.token(s.doctorID, access.ProfessionDoctor)
	other := s.token(domain.SubjectID(uuid.New()), access.ProfessionDoctor)

	s.Run("author edits inside window", func() {
		s.Equal(http.StatusOK, s.do(http.MethodPut, path, author, nil).Code)
	})

	s.Run("non-author cannot edit", func() {
		s.Equal(http.StatusForbidden, s.do(http.MethodPut, path, other, nil).Code)
	})

	s.Run("author deletes inside window", func() {
		s.Equal(http.StatusNoContent, s.do(http.MethodDelete, path, author, nil).Code)
		_, err := s.store.GetEvent(s.T().Context(), s.event.ID)
		s.ErrorIs(err, clinical.ErrNotFound)
	})
}

func (s *APISuite) TestEventEditAfterWindow() {
	s.clock.Advance(25 * time.Hour)
	author := s.token(s.doctorID, access.ProfessionDoctor)
	rec := s.do(http.MethodPut, "/events/"+s.event.ID.String(), author, nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *APISuite) TestOpsEndpoints() {
	token := s.token(domain.SubjectID(uuid.New()), access.ProfessionNurse)
	// Populate a decision so stats move.
	s.do(http.MethodGet, "/patients/"+s.patient.ID.String(), token, nil)

	rec := s.do(http.MethodGet, "/internal/cache/stats", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var stats cache.Stats
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&stats))
	s.NotZero(stats.Total)

	rec = s.do(http.MethodPost, "/internal/cache/clear", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/internal/cache/probe", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestBulkEndpointsWithoutDatabase() {
	token := s.token(domain.SubjectID(uuid.New()), access.ProfessionDoctor)
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/patients/", token, nil).Code)
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/me/permissions", token, nil).Code)
}

func (s *APISuite) TestHealthz() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
}
