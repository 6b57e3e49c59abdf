package store

import (
	"context"
	"sort"
	"sync"

	"healthconsent/internal/ledger/models"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/sentinel"
)

// InMemoryStore is an append-only slice guarded by a mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*models.Record
	ids     map[id.RecordID]struct{}
}

func New() *InMemoryStore {
	return &InMemoryStore{ids: make(map[id.RecordID]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[rec.ID]; ok {
		return sentinel.ErrConflict
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec.Clone())
	return nil
}

// Query returns matches newest first. Records with equal timestamps are
// returned in reverse insertion order.
func (s *InMemoryStore) Query(_ context.Context, q models.Query) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if q.Matches(s.records[i]) {
			out = append(out, s.records[i].Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
