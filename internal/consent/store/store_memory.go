package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"healthconsent/internal/consent/models"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the requested grant does not exist
// - ErrConflict when an id is reused or a second active grant is inserted for a pair
// - ErrInvalidState when a status change is not a legal lifecycle move

// InMemoryStore keeps grants in memory for tests and database-less runs.
// It enforces the same single-active-per-pair rule as the Postgres index.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[id.ConsentID]*models.Grant
	active map[string]id.ConsentID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		grants: make(map[id.ConsentID]*models.Grant),
		active: make(map[string]id.ConsentID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, grant *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[grant.ID]; ok {
		return sentinel.ErrConflict
	}
	key := models.PairKey(grant.PatientID, grant.FacilityID)
	if grant.Status == models.StatusActive {
		if _, ok := s.active[key]; ok {
			return sentinel.ErrConflict
		}
		s.active[key] = grant.ID
	}
	s.grants[grant.ID] = grant.Clone()
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, patientID id.PatientID, facilityID id.FacilityID) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consentID, ok := s.active[models.PairKey(patientID, facilityID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.grants[consentID].Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return grant.Clone(), nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.PatientID, filter *models.GrantFilter) ([]*models.Grant, error) {
	return s.list(func(g *models.Grant) bool { return g.PatientID == patientID }, filter), nil
}

func (s *InMemoryStore) ListByFacility(_ context.Context, facilityID id.FacilityID, filter *models.GrantFilter) ([]*models.Grant, error) {
	return s.list(func(g *models.Grant) bool { return g.FacilityID == facilityID }, filter), nil
}

func (s *InMemoryStore) list(match func(*models.Grant) bool, filter *models.GrantFilter) []*models.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Grant, 0)
	for _, g := range s.grants {
		if match(g) && filter.Matches(g) {
			out = append(out, g.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GrantedAt.After(out[j].GrantedAt)
	})
	return out
}

// UpdateStatus moves a grant along its lifecycle. revokedAt is recorded only
// for the revoked status.
func (s *InMemoryStore) UpdateStatus(_ context.Context, consentID id.ConsentID, status models.Status, revokedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[consentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !grant.Status.CanTransitionTo(status) {
		return sentinel.ErrInvalidState
	}
	if status == models.StatusRevoked {
		if revokedAt == nil {
			return sentinel.ErrInvalidState
		}
		t := *revokedAt
		grant.RevokedAt = &t
	}
	if grant.Status == models.StatusActive {
		delete(s.active, models.PairKey(grant.PatientID, grant.FacilityID))
	}
	grant.Status = status
	return nil
}
