//go:build integration

package bulk_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"clinauth/internal/access"
	"clinauth/internal/access/bulk"
	"clinauth/pkg/domain"
	"clinauth/pkg/testutil"
	"clinauth/pkg/testutil/containers"
)

type ResolverSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	clock    *testutil.Clock
	rules    *access.Ruleset
	resolver *bulk.Resolver
}

func TestResolverSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupSuite() {
	s.pg = containers.NewPostgres(s.T())
	s.clock = testutil.NewClock(time.Now().UTC())
	s.rules = access.NewRuleset(s.clock)
	s.resolver = bulk.NewResolver(s.pg.DB, s.rules)
}

func (s *ResolverSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(),
		"subject_groups", "subject_profiles", "clinical_events", "patients")
	s.Require().NoError(err)
}

func (s *ResolverSuite) seedPatient(status access.PatientStatus) *access.Patient {
	p := &access.Patient{ID: domain.PatientID(uuid.New()), Status: status}
	_, err := s.pg.DB.ExecContext(context.Background(),
		`INSERT INTO patients (id, status) VALUES ($1, $2)`, p.ID.String(), string(p.Status))
	s.Require().NoError(err)
	return p
}

func (s *ResolverSuite) seedEvent(author domain.SubjectID, createdAt time.Time) *access.Event {
	e := &access.Event{ID: domain.EventID(uuid.New()), CreatedBy: author, CreatedAt: createdAt, Type: "note"}
	_, err := s.pg.DB.ExecContext(context.Background(),
		`INSERT INTO clinical_events (id, created_by, created_at, event_type) VALUES ($1, $2, $3, $4)`,
		e.ID.String(), author.String(), createdAt, e.Type)
	s.Require().NoError(err)
	return e
}

func (s *ResolverSuite) TestAccessiblePatientIDsEquivalence() {
	sub := &access.Subject{ID: domain.SubjectID(uuid.New()), Authenticated: true, Profession: access.ProfessionStudent}
	candidates := []*access.Patient{
		s.seedPatient(access.StatusInpatient),
		s.seedPatient(access.StatusEmergency),
		s.seedPatient(access.StatusDischarged),
	}

	ids, err := s.resolver.AccessiblePatientIDs(context.Background(), sub, bulk.PatientFilter{})
	s.Require().NoError(err)

	want := make(map[domain.PatientID]struct{})
	for _, p := range candidates {
		if s.rules.CanAccessPatient(sub, p) {
			want[p.ID] = struct{}{}
		}
	}
	s.Equal(want, ids)

	filtered, err := s.resolver.AccessiblePatientIDs(context.Background(), sub, bulk.PatientFilter{
		Statuses: []access.PatientStatus{access.StatusEmergency},
	})
	s.Require().NoError(err)
	s.Len(filtered, 1)
	s.Contains(filtered, candidates[1].ID)
}

func (s *ResolverSuite) TestEditableEventIDsEquivalence() {
	author := &access.Subject{ID: domain.SubjectID(uuid.New()), Authenticated: true, Profession: access.ProfessionDoctor}
	stranger := domain.SubjectID(uuid.New())
	now := s.clock.Now()

	candidates := []*access.Event{
		s.seedEvent(author.ID, now.Add(-time.Hour)),
		s.seedEvent(author.ID, now.Add(-25*time.Hour)),
		s.seedEvent(stranger, now.Add(-time.Hour)),
	}

	ids, err := s.resolver.EditableEventIDs(context.Background(), author)
	s.Require().NoError(err)

	want := make(map[domain.EventID]struct{})
	for _, e := range candidates {
		if s.rules.CanEditEvent(author, e) {
			want[e.ID] = struct{}{}
		}
	}
	s.Equal(want, ids)
	s.Len(ids, 1)
}

func (s *ResolverSuite) TestProjectionAndSummary() {
	ctx := context.Background()
	id := domain.SubjectID(uuid.New())
	_, err := s.pg.DB.ExecContext(ctx,
		`INSERT INTO subject_profiles (subject_id, profession, hospital_context) VALUES ($1, 'resident', 'st-lucia-general')`,
		id.String())
	s.Require().NoError(err)
	for _, group := range []string{"ward-b", "oncall"} {
		_, err := s.pg.DB.ExecContext(ctx,
			`INSERT INTO subject_groups (subject_id, group_name) VALUES ($1, $2)`, id.String(), group)
		s.Require().NoError(err)
	}
	s.seedPatient(access.StatusInpatient)
	s.seedPatient(access.StatusOutpatient)
	s.seedEvent(id, s.clock.Now().Add(-time.Hour))

	proj, err := s.resolver.Projection(ctx, id)
	s.Require().NoError(err)
	s.Equal(access.ProfessionResident, proj.Profession)
	s.Equal("st-lucia-general", proj.HospitalContext)
	s.ElementsMatch([]string{"ward-b", "oncall"}, proj.Groups)

	summary, err := s.resolver.Summary(ctx, proj.Subject())
	s.Require().NoError(err)
	s.Equal(2, summary.PermissionCounts[access.PermAccessPatient])
	s.Equal(2, summary.PermissionCounts[access.PermDischargePatient])
	s.Equal(1, summary.PermissionCounts[access.PermEditEvent])
	s.Equal([]access.Kind{access.KindPatient, access.KindEvent}, summary.AccessibleKinds)

	_, err = s.resolver.Projection(ctx, domain.SubjectID(uuid.New()))
	s.ErrorIs(err, sql.ErrNoRows)
}
