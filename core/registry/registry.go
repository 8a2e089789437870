// Package registry holds the authoritative in-memory view of field-team
// presence. Presence is advisory: it answers "who is available right now"
// and nothing else.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sosgrid/sosd/core/model"
)

// Store is the presence registry consumed by the dispatch engine, the
// session gateway and the inactivity reaper.
type Store interface {
	UpsertLocation(teamID string, loc model.Location, typ model.TeamType, status model.TeamStatus) model.TeamPresence
	SetStatus(teamID string, status model.TeamStatus) model.TeamPresence
	Remove(teamID string) bool
	RemoveIfStale(teamID string, cutoff time.Time) bool
	Get(teamID string) (model.TeamPresence, bool)
	Snapshot() []model.TeamPresence
}

// MemoryStore implements Store with a mutex-guarded map. Operations are
// atomic per team; a Snapshot is a point-in-time copy, not a transaction
// across teams.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	teams map[string]model.TeamPresence
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, teams: map[string]model.TeamPresence{}}
}

// UpsertLocation creates or replaces the presence record for teamID. The
// status defaults to available only on first creation and is otherwise
// preserved unless explicitly supplied; the same holds for the team type.
// LastUpdate is refreshed on every call.
func (s *MemoryStore) UpsertLocation(teamID string, loc model.Location, typ model.TeamType, status model.TeamStatus) model.TeamPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.teams[teamID]
	if !ok {
		p = model.TeamPresence{TeamID: teamID, Type: model.TeamGeneral, Status: model.StatusAvailable}
	}
	p.Location = loc
	if typ != "" {
		p.Type = typ
	}
	if status != "" {
		p.Status = status
	}
	p.LastUpdate = s.now()
	s.teams[teamID] = p
	return p
}

// SetStatus records the status for teamID, creating the record on demand so
// out-of-order events (status before first location) are tolerated.
func (s *MemoryStore) SetStatus(teamID string, status model.TeamStatus) model.TeamPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.teams[teamID]
	if !ok {
		p = model.TeamPresence{TeamID: teamID, Type: model.TeamGeneral}
	}
	p.Status = status
	p.LastUpdate = s.now()
	s.teams[teamID] = p
	return p
}

// Remove deletes the record and reports whether it existed.
func (s *MemoryStore) Remove(teamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.teams[teamID]
	delete(s.teams, teamID)
	return ok
}

// RemoveIfStale deletes the record only if its LastUpdate is not after
// cutoff. An update racing a sweep therefore keeps the team registered.
func (s *MemoryStore) RemoveIfStale(teamID string, cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.teams[teamID]
	if !ok || p.LastUpdate.After(cutoff) {
		return false
	}
	delete(s.teams, teamID)
	return true
}

// Get returns the presence record for teamID.
func (s *MemoryStore) Get(teamID string) (model.TeamPresence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.teams[teamID]
	return p, ok
}

// Snapshot returns a copy of every record, sorted by team ID. The sort
// gives matching and sweeping a deterministic iteration order.
func (s *MemoryStore) Snapshot() []model.TeamPresence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.TeamPresence, 0, len(s.teams))
	for _, p := range s.teams {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TeamID < res[j].TeamID })
	return res
}
