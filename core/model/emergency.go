package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmergencyStatus is the lifecycle state of an emergency record.
// Transitions: pending -> assigned -> resolved, pending|assigned -> cancelled.
// resolved and cancelled are terminal.
type EmergencyStatus string

const (
	EmergencyPending   EmergencyStatus = "pending"
	EmergencyAssigned  EmergencyStatus = "assigned"
	EmergencyResolved  EmergencyStatus = "resolved"
	EmergencyCancelled EmergencyStatus = "cancelled"
)

// Valid reports whether s is a known emergency status.
func (s EmergencyStatus) Valid() bool {
	switch s {
	case EmergencyPending, EmergencyAssigned, EmergencyResolved, EmergencyCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s EmergencyStatus) Terminal() bool {
	return s == EmergencyResolved || s == EmergencyCancelled
}

// Priority ranks the urgency of a report.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Source identifies the entry point of an emergency report.
type Source int

const (
	// SourceConsole is a report entered at the dispatch console.
	SourceConsole Source = iota
	// SourceMobile is an SOS raised from the mobile app.
	SourceMobile
)

// String returns a human-readable representation of the source.
func (s Source) String() string {
	switch s {
	case SourceConsole:
		return "console"
	case SourceMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// DefaultPriority returns the priority applied when the report omits one.
func (s Source) DefaultPriority() Priority {
	if s == SourceMobile {
		return PriorityCritical
	}
	return PriorityHigh
}

// IDPrefix returns the source-distinguishing prefix for emergency IDs.
func (s Source) IDPrefix() string {
	if s == SourceMobile {
		return "SOS"
	}
	return "EMG"
}

// NewEmergencyID builds a time-derived emergency identifier such as
// "SOS-1700000000000-1a2b3c4d". The random suffix keeps reports landing in
// the same millisecond from colliding.
func NewEmergencyID(s Source, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", s.IDPrefix(), at.UnixMilli(), uuid.NewString()[:8])
}

// Emergency is the durable record of a distress report. AssignedTeams keeps
// assignment order; it is empty exactly while the status is pending.
type Emergency struct {
	ID            string          `json:"emergency_id"`
	Type          string          `json:"type"`
	Location      Location        `json:"location"`
	Priority      Priority        `json:"priority"`
	Status        EmergencyStatus `json:"status"`
	AssignedTeams []string        `json:"assigned_teams"`
	UserID        string          `json:"user_id,omitempty"`
	UserInfo      string          `json:"user_info,omitempty"`
	CreatedAt     time.Time       `json:"timestamp"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}
