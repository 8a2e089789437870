package model

import (
	"fmt"
	"math"
	"time"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || math.IsInf(l.Latitude, 0) ||
		math.IsNaN(l.Longitude) || math.IsInf(l.Longitude, 0) {
		return fmt.Errorf("coordinates must be finite")
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	}
	return nil
}

// TeamType categorises a field team.
type TeamType string

const (
	TeamFire      TeamType = "fire"
	TeamPolice    TeamType = "police"
	TeamAmbulance TeamType = "ambulance"
	TeamGeneral   TeamType = "general"
)

// Valid reports whether t is a known team type.
func (t TeamType) Valid() bool {
	switch t {
	case TeamFire, TeamPolice, TeamAmbulance, TeamGeneral:
		return true
	}
	return false
}

// TeamStatus is the advertised availability of a team. Offline presence is
// normally implicit through absence from the registry, but a team may also
// report it explicitly.
type TeamStatus string

const (
	StatusAvailable TeamStatus = "available"
	StatusBusy      TeamStatus = "busy"
	StatusOffline   TeamStatus = "offline"
)

// Valid reports whether s is a known team status.
func (s TeamStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// TeamPresence is the in-memory, advisory view of a connected field team.
// It lives only in the registry and carries no durable identity beyond the
// stable team identifier (format "Team-<N>").
type TeamPresence struct {
	TeamID     string     `json:"team_id"`
	Location   Location   `json:"location"`
	Type       TeamType   `json:"team_type"`
	Status     TeamStatus `json:"status"`
	LastUpdate time.Time  `json:"last_update"`
}
