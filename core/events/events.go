// Package events defines the domain events published on the internal bus.
// Subscribers (structured logging, tests) observe the dispatch flow without
// coupling to the engine.
package events

import (
	"github.com/sosgrid/sosd/core/geo"
	"github.com/sosgrid/sosd/core/model"
)

// Event is the union of all bus event types.
type Event interface{ isEvent() }

// AlertEvent is emitted when a new emergency has been reported and ranked.
type AlertEvent struct {
	Emergency model.Emergency
	Nearby    []geo.Match
}

// AssignmentEvent is emitted after teams have been assigned to an emergency.
// Persisted is false when the durable record could not be updated and only
// the realtime path was served.
type AssignmentEvent struct {
	EmergencyID string
	TeamIDs     []string
	Persisted   bool
}

// CompletionEvent is emitted when a team marks an emergency resolved.
type CompletionEvent struct {
	EmergencyID string
	TeamID      string
}

// CancellationEvent is emitted when an emergency is cancelled.
type CancellationEvent struct {
	EmergencyID   string
	ReleasedTeams []string
}

// StatusEvent mirrors a team status change.
type StatusEvent struct {
	TeamID string
	Status model.TeamStatus
}

// DisconnectEvent is emitted when a team's presence is evicted, either by
// its last session closing or by the inactivity reaper.
type DisconnectEvent struct {
	TeamID string
	Reason string
}

func (AlertEvent) isEvent()        {}
func (AssignmentEvent) isEvent()   {}
func (CompletionEvent) isEvent()   {}
func (CancellationEvent) isEvent() {}
func (StatusEvent) isEvent()       {}
func (DisconnectEvent) isEvent()   {}
