package gateway

import (
	"time"

	"github.com/sosgrid/sosd/core/model"
)

// Outbound event names. The wire format is a JSON envelope {event, data}.
const (
	EventEmergencyAlert     = "emergencyAlert"
	EventUrgentAlert        = "urgentAlert"
	EventAssignEmergency    = "assignEmergency"
	EventAssignConfirmed    = "assignmentConfirmed"
	EventEmergencyCompleted = "emergencyCompleted"
	EventEmergencyCancelled = "emergencyCancelled"
	EventTeamLocation       = "teamLocationUpdate"
	EventTeamStatus         = "teamStatusUpdate"
	EventTeamDisconnected   = "teamDisconnected"
)

// NearbyTeam is one entry of the ranked candidate list carried by an alert.
// DistanceKm is rounded to two decimals for display.
type NearbyTeam struct {
	TeamID     string           `json:"team_id"`
	TeamType   model.TeamType   `json:"team_type"`
	Status     model.TeamStatus `json:"status"`
	Location   model.Location   `json:"location"`
	DistanceKm float64          `json:"distance_km"`
}

// AlertPayload is broadcast to every session when an emergency is reported.
type AlertPayload struct {
	Emergency   model.Emergency `json:"emergency"`
	NearbyTeams []NearbyTeam    `json:"nearby_teams"`
}

// UrgentAlertPayload is the targeted notice pushed to the closest teams.
type UrgentAlertPayload struct {
	EmergencyID string         `json:"emergency_id"`
	Type        string         `json:"type"`
	Location    model.Location `json:"location"`
	Priority    model.Priority `json:"priority"`
	DistanceKm  float64        `json:"distance_km"`
}

// AssignmentPayload is the targeted assignment push to one team.
type AssignmentPayload struct {
	EmergencyID string         `json:"emergency_id"`
	TeamID      string         `json:"team_id"`
	Type        string         `json:"type"`
	Location    model.Location `json:"location"`
}

// ConfirmationPayload goes back to the session that initiated an assignment.
// Persisted is false when the durable record could not be updated and only
// the realtime fan-out was served.
type ConfirmationPayload struct {
	Success       bool     `json:"success"`
	Persisted     bool     `json:"persisted"`
	EmergencyID   string   `json:"emergency_id"`
	AssignedTeams []string `json:"assigned_teams"`
	Message       string   `json:"message,omitempty"`
}

// CompletionPayload is broadcast when an emergency is resolved.
type CompletionPayload struct {
	EmergencyID string    `json:"emergency_id"`
	TeamID      string    `json:"team_id"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// CancellationPayload is broadcast when an emergency is cancelled.
type CancellationPayload struct {
	EmergencyID   string   `json:"emergency_id"`
	ReleasedTeams []string `json:"released_teams"`
}

// LocationPayload mirrors a team location update to the dashboards.
type LocationPayload struct {
	TeamID    string           `json:"team_id"`
	Location  model.Location   `json:"location"`
	TeamType  model.TeamType   `json:"team_type"`
	Status    model.TeamStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// StatusPayload mirrors a team status change to the dashboards.
type StatusPayload struct {
	TeamID string           `json:"team_id"`
	Status model.TeamStatus `json:"status"`
}

// DisconnectPayload announces an evicted team presence.
type DisconnectPayload struct {
	TeamID string `json:"team_id"`
	Reason string `json:"reason,omitempty"`
}
