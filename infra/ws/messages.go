package ws

import (
	"encoding/json"

	"github.com/sosgrid/sosd/core/model"
)

// Inbound event names accepted on the socket.
const (
	eventRegisterTeam      = "registerTeam"
	eventLocationUpdate    = "locationUpdate"
	eventStatusUpdate      = "statusUpdate"
	eventReportEmergency   = "reportEmergency"
	eventAssignEmergency   = "assignEmergency"
	eventCompleteEmergency = "completeEmergency"
	eventCancelEmergency   = "cancelEmergency"

	// eventReportConfirmed answers a socket-originated report with the
	// emergency ID and the nearby-team count.
	eventReportConfirmed = "reportConfirmed"
	// eventError answers a malformed inbound frame.
	eventError = "error"
)

// envelope is the wire frame: {"event": ..., "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type registerTeamMsg struct {
	TeamID string `json:"team_id"`
}

type locationUpdateMsg struct {
	TeamID    string           `json:"team_id"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	TeamType  model.TeamType   `json:"team_type,omitempty"`
	Status    model.TeamStatus `json:"status,omitempty"`
}

type statusUpdateMsg struct {
	TeamID string           `json:"team_id"`
	Status model.TeamStatus `json:"status"`
}

type reportEmergencyMsg struct {
	Type      string         `json:"type"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Priority  model.Priority `json:"priority,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	UserInfo  string         `json:"user_info,omitempty"`
}

type assignEmergencyMsg struct {
	EmergencyID string   `json:"emergency_id"`
	TeamIDs     []string `json:"team_ids"`
	Latitude    float64  `json:"latitude,omitempty"`
	Longitude   float64  `json:"longitude,omitempty"`
	Type        string   `json:"type,omitempty"`
}

type completeEmergencyMsg struct {
	EmergencyID string `json:"emergency_id"`
	TeamID      string `json:"team_id"`
}

type cancelEmergencyMsg struct {
	EmergencyID string `json:"emergency_id"`
}

type reportConfirmedMsg struct {
	EmergencyID string `json:"emergency_id"`
	NearbyTeams int    `json:"nearby_teams"`
}

type errorMsg struct {
	Message string `json:"message"`
}
