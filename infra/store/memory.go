package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sosgrid/sosd/core/model"
	corestore "github.com/sosgrid/sosd/core/store"
)

// MemoryStore keeps emergency records in a mutex-guarded map. It backs tests
// and single-node development setups.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Emergency
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Emergency{}}
}

// Create persists a new record.
func (s *MemoryStore) Create(_ context.Context, em model.Emergency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[em.ID]; ok {
		return fmt.Errorf("emergency %s already exists", em.ID)
	}
	s.data[em.ID] = cloneEmergency(em)
	return nil
}

// FindByID returns the record or corestore.ErrNotFound.
func (s *MemoryStore) FindByID(_ context.Context, id string) (model.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	em, ok := s.data[id]
	if !ok {
		return model.Emergency{}, corestore.ErrNotFound
	}
	return cloneEmergency(em), nil
}

// FindByStatus returns matching records, oldest first.
func (s *MemoryStore) FindByStatus(_ context.Context, status model.EmergencyStatus) ([]model.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Emergency
	for _, em := range s.data {
		if em.Status == status {
			res = append(res, cloneEmergency(em))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// SetAssignment replaces the assigned teams and marks the record assigned.
func (s *MemoryStore) SetAssignment(_ context.Context, id string, teamIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	em, ok := s.data[id]
	if !ok {
		return corestore.ErrNotFound
	}
	em.AssignedTeams = append([]string(nil), teamIDs...)
	em.Status = model.EmergencyAssigned
	s.data[id] = em
	return nil
}

// SetStatus moves the record to status, storing resolvedAt for resolutions.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status model.EmergencyStatus, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	em, ok := s.data[id]
	if !ok {
		return corestore.ErrNotFound
	}
	em.Status = status
	if status == model.EmergencyResolved {
		at := resolvedAt
		em.ResolvedAt = &at
	}
	s.data[id] = em
	return nil
}

func cloneEmergency(em model.Emergency) model.Emergency {
	out := em
	out.AssignedTeams = append([]string(nil), em.AssignedTeams...)
	if em.ResolvedAt != nil {
		at := *em.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}
