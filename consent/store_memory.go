// consent/store_memory.go
package consent

import (
	"context"
	"sync"

	"backend/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Latest-wins semantics match the Postgres store: ties on recorded_at break
// by insertion order.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []models.ConsentRecord

	// FailWith, when set, makes every call fail. Simulates an unavailable
	// store so the fail-closed gate path can be exercised.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, rec *models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) LatestFor(_ context.Context, patientID, practitionerID int) (*models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var latest *models.ConsentRecord
	for i := range s.records {
		r := s.records[i]
		if r.PatientID != patientID || r.PractitionerID != practitionerID {
			continue
		}
		if latest == nil || !r.RecordedAt.Before(latest.RecordedAt) {
			cp := r
			latest = &cp
		}
	}
	return latest, nil
}

func (s *MemoryStore) ListFor(_ context.Context, patientID, practitionerID int) ([]models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var list []models.ConsentRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.PatientID == patientID && r.PractitionerID == practitionerID {
			list = append(list, r)
		}
	}
	return list, nil
}
