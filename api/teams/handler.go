// Package teams exposes the team registry over HTTP.
package teams

import (
	"encoding/json"
	"net/http"

	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/registry"
)

type locationRequest struct {
	TeamID    string           `json:"team_id"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	TeamType  model.TeamType   `json:"team_type,omitempty"`
	Status    model.TeamStatus `json:"status,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewLocationHandler returns an HTTP handler accepting team position reports
// via POST /api/teams/location. Updates land in the registry and are
// mirrored to the realtime gateway.
func NewLocationHandler(reg registry.Store, pub gateway.Publisher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req locationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
			return
		}
		if req.TeamID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "team_id required"})
			return
		}
		loc := model.Location{Latitude: req.Latitude, Longitude: req.Longitude}
		if err := loc.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if req.Status != "" && !req.Status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status"})
			return
		}
		p := reg.UpsertLocation(req.TeamID, loc, req.TeamType, req.Status)
		pub.Broadcast(gateway.EventTeamLocation, gateway.LocationPayload{
			TeamID:    p.TeamID,
			Location:  p.Location,
			TeamType:  p.Type,
			Status:    p.Status,
			Timestamp: p.LastUpdate,
		})
		writeJSON(w, http.StatusOK, p)
	})
}

// NewListHandler returns an HTTP handler exposing the registry snapshot via
// GET /api/teams.
func NewListHandler(reg registry.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, reg.Snapshot())
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
