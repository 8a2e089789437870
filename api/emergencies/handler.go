// Package emergencies exposes the report intake and emergency history over
// HTTP.
package emergencies

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sosgrid/sosd/core/dispatch"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/store"
)

type reportRequest struct {
	Type      string         `json:"type"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Priority  model.Priority `json:"priority,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	UserInfo  string         `json:"user_info,omitempty"`
}

type reportResponse struct {
	EmergencyID string `json:"emergency_id"`
	NearbyTeams int    `json:"nearby_teams"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewReportHandler returns an HTTP handler accepting distress reports. The
// source decides the defaults: POST /api/sos serves the mobile app, POST
// /api/emergencies the dispatch console.
func NewReportHandler(engine *dispatch.Engine, source model.Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
			return
		}
		res, err := engine.Report(r.Context(), dispatch.ReportRequest{
			Type:     req.Type,
			Location: model.Location{Latitude: req.Latitude, Longitude: req.Longitude},
			Priority: req.Priority,
			Source:   source,
			UserID:   req.UserID,
			UserInfo: req.UserInfo,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reportResponse{
			EmergencyID: res.EmergencyID,
			NearbyTeams: res.NearbyTeams,
		})
	})
}

// NewHistoryHandler returns an HTTP handler exposing stored emergencies via
// GET /api/emergencies?status=. Without a status filter it returns the
// pending backlog.
func NewHistoryHandler(st store.EmergencyStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := model.EmergencyStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = model.EmergencyPending
		}
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status"})
			return
		}
		list, err := st.FindByStatus(r.Context(), status)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, list)
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case dispatch.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, dispatch.ErrPersistence):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
