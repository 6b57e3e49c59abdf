//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthconsent/internal/consent/models"
	"healthconsent/internal/consent/store"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/sentinel"
	"healthconsent/pkg/testutil"
	"healthconsent/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "consents"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) grant(patient id.PatientID, facility id.FacilityID, kind models.Kind, at time.Time) *models.Grant {
	return testutil.NewGrantBuilder().
		WithPatient(patient).
		WithFacility(facility).
		WithKind(kind).
		WithGrantedAt(at).
		Build()
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	expires := s.now.Add(24 * time.Hour)
	g := testutil.NewGrantBuilder().WithGrantedAt(s.now).WithExpiresAt(expires).Build()

	s.Require().NoError(s.store.Insert(ctx, g))

	fetched, err := s.store.FindByID(ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(g, fetched)

	active, err := s.store.FindActive(ctx, g.PatientID, g.FacilityID)
	s.Require().NoError(err)
	s.Equal(g.ID, active.ID)
}

func (s *PostgresStoreSuite) TestDuplicateIDConflicts() {
	ctx := context.Background()
	g := s.grant("p-1", "fac-1", models.KindView, s.now)
	s.Require().NoError(s.store.Insert(ctx, g))

	dup := s.grant("p-2", "fac-2", models.KindView, s.now)
	dup.ID = g.ID
	s.ErrorIs(s.store.Insert(ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestPartialIndexAllowsOneActivePerPair() {
	ctx := context.Background()
	first := s.grant("p-1", "fac-1", models.KindView, s.now)
	s.Require().NoError(s.store.Insert(ctx, first))

	s.ErrorIs(s.store.Insert(ctx, s.grant("p-1", "fac-1", models.KindEdit, s.now)), sentinel.ErrConflict)

	revokedAt := s.now.Add(time.Minute)
	s.Require().NoError(s.store.UpdateStatus(ctx, first.ID, models.StatusRevoked, &revokedAt))
	s.NoError(s.store.Insert(ctx, s.grant("p-1", "fac-1", models.KindEdit, s.now.Add(time.Minute))))
}

func (s *PostgresStoreSuite) TestConcurrentInsertsKeepOneActive() {
	ctx := context.Background()

	result := testutil.RunConcurrent(16, func(int) error {
		return s.store.Insert(ctx, s.grant("p-race", "fac-race", models.KindView, s.now))
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(15), result.Conflicts)
}

func (s *PostgresStoreSuite) TestUpdateStatusLifecycle() {
	ctx := context.Background()
	g := s.grant("p-1", "fac-1", models.KindView, s.now)
	s.Require().NoError(s.store.Insert(ctx, g))

	s.Require().NoError(s.store.UpdateStatus(ctx, g.ID, models.StatusExpired, nil))
	s.Require().NoError(s.store.UpdateStatus(ctx, g.ID, models.StatusExpired, nil), "expiry is idempotent")

	revokedAt := s.now
	s.Require().NoError(s.store.UpdateStatus(ctx, g.ID, models.StatusRevoked, &revokedAt))
	s.ErrorIs(s.store.UpdateStatus(ctx, g.ID, models.StatusExpired, nil), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.UpdateStatus(ctx, id.NewConsentID(), models.StatusExpired, nil), sentinel.ErrNotFound)

	other := s.grant("p-2", "fac-1", models.KindView, s.now)
	s.Require().NoError(s.store.Insert(ctx, other))
	s.Require().NoError(s.store.UpdateStatus(ctx, other.ID, models.StatusRevoked, &revokedAt))
	s.ErrorIs(s.store.UpdateStatus(ctx, other.ID, models.StatusRevoked, &revokedAt), sentinel.ErrInvalidState)

	fetched, err := s.store.FindByID(ctx, other.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, fetched.Status)
	s.Require().NotNil(fetched.RevokedAt)
	s.True(revokedAt.Equal(*fetched.RevokedAt))
}

func (s *PostgresStoreSuite) TestListOrderedNewestFirst() {
	ctx := context.Background()
	old := s.grant("p-1", "fac-1", models.KindView, s.now.Add(-time.Hour))
	s.Require().NoError(s.store.Insert(ctx, old))
	s.Require().NoError(s.store.UpdateStatus(ctx, old.ID, models.StatusExpired, nil))
	recent := s.grant("p-1", "fac-1", models.KindShare, s.now)
	s.Require().NoError(s.store.Insert(ctx, recent))

	all, err := s.store.ListByPatient(ctx, "p-1", nil)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(recent.ID, all[0].ID)
	s.Equal(old.ID, all[1].ID)

	expired := models.StatusExpired
	onlyExpired, err := s.store.ListByFacility(ctx, "fac-1", &models.GrantFilter{Status: &expired})
	s.Require().NoError(err)
	s.Require().Len(onlyExpired, 1)
	s.Equal(old.ID, onlyExpired[0].ID)
}
