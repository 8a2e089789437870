// Package ws implements the realtime session gateway over websockets.
// Dashboards and field teams connect here; teams bind their identity with a
// registerTeam frame and join a team-scoped delivery group. All outbound
// delivery is best-effort fan-out with no acknowledgment.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sosgrid/sosd/core/dispatch"
	"github.com/sosgrid/sosd/core/events"
	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/logger"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/registry"
	"github.com/sosgrid/sosd/internal/eventbus"
)

// handleTimeout bounds the engine work triggered by one inbound frame.
const handleTimeout = 10 * time.Second

// Hub tracks connected sessions and team delivery groups. It implements
// gateway.Publisher.
type Hub struct {
	registry registry.Store
	bus      *eventbus.Bus[events.Event]
	log      logger.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	engine   *dispatch.Engine
	sessions map[*Session]struct{}
	teams    map[string]map[*Session]struct{}
}

// NewHub creates a Hub. The engine is attached afterwards with SetEngine
// because the engine itself publishes through the hub.
func NewHub(reg registry.Store, bus *eventbus.Bus[events.Event], log logger.Logger) *Hub {
	return &Hub{
		registry: reg,
		bus:      bus,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: map[*Session]struct{}{},
		teams:    map[string]map[*Session]struct{}{},
	}
}

// SetEngine attaches the dispatch engine handling inbound operations.
func (h *Hub) SetEngine(e *dispatch.Engine) {
	h.mu.Lock()
	h.engine = e
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and runs the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade: %v", err)
		return
	}
	s := &Session{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.addSession(s)
	h.log.Infof("session %s connected", s.id)
	go s.writePump()
	h.readLoop(s)
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

// readLoop consumes frames until the connection drops, then tears the
// session down.
func (h *Hub) readLoop(s *Session) {
	defer h.dropSession(s)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.deliverTo(s, eventError, errorMsg{Message: "malformed frame"})
			continue
		}
		h.handle(s, env)
	}
}

// dropSession removes the session. When the last session bound to a team
// closes, the team's presence is evicted and a disconnection notice goes
// out; earlier disconnects of a multi-session team leave presence intact.
func (h *Hub) dropSession(s *Session) {
	_ = s.conn.Close()
	teamID := s.TeamID()
	lastForTeam := false
	h.mu.Lock()
	delete(h.sessions, s)
	if teamID != "" {
		lastForTeam = h.leaveGroupLocked(s, teamID)
	}
	h.mu.Unlock()
	s.closeSend()

	h.log.Infof("session %s disconnected", s.id)
	if lastForTeam {
		h.evictTeam(teamID, "session closed")
	}
}

// leaveGroupLocked removes s from the teamID delivery group and reports
// whether the group emptied. Caller holds h.mu.
func (h *Hub) leaveGroupLocked(s *Session, teamID string) bool {
	group, ok := h.teams[teamID]
	if !ok {
		return false
	}
	delete(group, s)
	if len(group) != 0 {
		return false
	}
	delete(h.teams, teamID)
	return true
}

// evictTeam drops the team's presence and announces the disconnection.
func (h *Hub) evictTeam(teamID, reason string) {
	h.registry.Remove(teamID)
	h.Broadcast(gateway.EventTeamDisconnected, gateway.DisconnectPayload{TeamID: teamID, Reason: reason})
	if h.bus != nil {
		h.bus.Publish(events.DisconnectEvent{TeamID: teamID, Reason: reason})
	}
}

func (h *Hub) handle(s *Session, env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	switch env.Event {
	case eventRegisterTeam:
		var msg registerTeamMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		h.registerTeam(s, msg.TeamID)
	case eventLocationUpdate:
		var msg locationUpdateMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		h.locationUpdate(msg)
	case eventStatusUpdate:
		var msg statusUpdateMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		h.statusUpdate(msg)
	case eventReportEmergency:
		var msg reportEmergencyMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		h.reportEmergency(ctx, s, msg)
	case eventAssignEmergency:
		var msg assignEmergencyMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		h.assignEmergency(ctx, s, msg)
	case eventCompleteEmergency:
		var msg completeEmergencyMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		eng := h.dispatchEngine()
		if eng == nil {
			return
		}
		if err := eng.Complete(ctx, msg.EmergencyID, msg.TeamID); err != nil {
			h.deliverTo(s, eventError, errorMsg{Message: err.Error()})
		}
	case eventCancelEmergency:
		var msg cancelEmergencyMsg
		if !h.decode(s, env.Data, &msg) {
			return
		}
		eng := h.dispatchEngine()
		if eng == nil {
			return
		}
		if err := eng.Cancel(ctx, msg.EmergencyID); err != nil {
			h.deliverTo(s, eventError, errorMsg{Message: err.Error()})
		}
	default:
		h.log.Debugf("session %s sent unknown event %q", s.id, env.Event)
	}
}

func (h *Hub) decode(s *Session, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		h.deliverTo(s, eventError, errorMsg{Message: "malformed frame"})
		return false
	}
	return true
}

func (h *Hub) dispatchEngine() *dispatch.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// registerTeam binds the team identity and joins the delivery group. No
// authentication happens here; identity is assumed verified upstream.
// Binding is also an availability signal for the registry. Rebinding under a
// new identity leaves the old group first, evicting the old presence when
// this was its last session.
func (h *Hub) registerTeam(s *Session, teamID string) {
	if teamID == "" {
		h.deliverTo(s, eventError, errorMsg{Message: "team_id required"})
		return
	}
	prev := s.TeamID()
	s.bind(teamID)
	lastForPrev := false
	h.mu.Lock()
	if prev != "" && prev != teamID {
		lastForPrev = h.leaveGroupLocked(s, prev)
	}
	group, ok := h.teams[teamID]
	if !ok {
		group = map[*Session]struct{}{}
		h.teams[teamID] = group
	}
	group[s] = struct{}{}
	h.mu.Unlock()

	if lastForPrev {
		h.evictTeam(prev, "session rebound")
	}

	h.registry.SetStatus(teamID, model.StatusAvailable)
	h.log.Infof("session %s registered as %s", s.id, teamID)
	h.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: teamID, Status: model.StatusAvailable})
	if h.bus != nil {
		h.bus.Publish(events.StatusEvent{TeamID: teamID, Status: model.StatusAvailable})
	}
}

func (h *Hub) locationUpdate(msg locationUpdateMsg) {
	if msg.TeamID == "" {
		return
	}
	loc := model.Location{Latitude: msg.Latitude, Longitude: msg.Longitude}
	if err := loc.Validate(); err != nil {
		h.log.Warnf("dropping location update for %s: %v", msg.TeamID, err)
		return
	}
	p := h.registry.UpsertLocation(msg.TeamID, loc, msg.TeamType, msg.Status)
	h.Broadcast(gateway.EventTeamLocation, gateway.LocationPayload{
		TeamID:    p.TeamID,
		Location:  p.Location,
		TeamType:  p.Type,
		Status:    p.Status,
		Timestamp: p.LastUpdate,
	})
}

func (h *Hub) statusUpdate(msg statusUpdateMsg) {
	if msg.TeamID == "" || !msg.Status.Valid() {
		return
	}
	p := h.registry.SetStatus(msg.TeamID, msg.Status)
	h.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: p.TeamID, Status: p.Status})
	if h.bus != nil {
		h.bus.Publish(events.StatusEvent{TeamID: p.TeamID, Status: p.Status})
	}
}

func (h *Hub) reportEmergency(ctx context.Context, s *Session, msg reportEmergencyMsg) {
	eng := h.dispatchEngine()
	if eng == nil {
		return
	}
	res, err := eng.Report(ctx, dispatch.ReportRequest{
		Type:     msg.Type,
		Location: model.Location{Latitude: msg.Latitude, Longitude: msg.Longitude},
		Priority: msg.Priority,
		Source:   model.SourceMobile,
		UserID:   msg.UserID,
		UserInfo: msg.UserInfo,
	})
	if err != nil {
		h.deliverTo(s, eventError, errorMsg{Message: err.Error()})
		return
	}
	h.deliverTo(s, eventReportConfirmed, reportConfirmedMsg{EmergencyID: res.EmergencyID, NearbyTeams: res.NearbyTeams})
}

// assignEmergency runs the assignment and confirms to the initiating
// session only, including the persisted flag for the degraded path.
func (h *Hub) assignEmergency(ctx context.Context, s *Session, msg assignEmergencyMsg) {
	eng := h.dispatchEngine()
	if eng == nil {
		return
	}
	res, err := eng.Assign(ctx, dispatch.AssignRequest{
		EmergencyID: msg.EmergencyID,
		TeamIDs:     msg.TeamIDs,
		Location:    model.Location{Latitude: msg.Latitude, Longitude: msg.Longitude},
		Type:        msg.Type,
	})
	if err != nil && dispatch.IsValidation(err) {
		h.deliverTo(s, gateway.EventAssignConfirmed, gateway.ConfirmationPayload{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	confirmation := gateway.ConfirmationPayload{
		Success:       true,
		Persisted:     res.Persisted,
		EmergencyID:   res.EmergencyID,
		AssignedTeams: res.TeamIDs,
	}
	if err != nil {
		confirmation.Message = err.Error()
	}
	h.deliverTo(s, gateway.EventAssignConfirmed, confirmation)
}

// Broadcast delivers the event to every connected session.
func (h *Hub) Broadcast(event string, payload any) {
	frame, ok := h.frame(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		s.enqueue(frame)
	}
}

// DeliverToTeam delivers the event to the sessions bound to teamID. A team
// with no bound session is silently skipped.
func (h *Hub) DeliverToTeam(teamID, event string, payload any) {
	frame, ok := h.frame(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.teams[teamID] {
		s.enqueue(frame)
	}
}

func (h *Hub) deliverTo(s *Session, event string, payload any) {
	if frame, ok := h.frame(event, payload); ok {
		s.enqueue(frame)
	}
}

func (h *Hub) frame(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorf("marshal %s payload: %v", event, err)
		return nil, false
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.log.Errorf("marshal %s frame: %v", event, err)
		return nil, false
	}
	return frame, true
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// TeamSessionCount returns how many sessions are bound to teamID.
func (h *Hub) TeamSessionCount(teamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.teams[teamID])
}
