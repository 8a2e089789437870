// Package dispatch owns the emergency state machine and orchestrates
// matching, assignment and completion. It mutates the team registry and the
// emergency store as two separate atomic operations; there is no
// cross-resource transaction, and a crash between the two is tolerated
// rather than prevented.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sosgrid/sosd/core/events"
	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/geo"
	"github.com/sosgrid/sosd/core/logger"
	coremetrics "github.com/sosgrid/sosd/core/metrics"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/registry"
	"github.com/sosgrid/sosd/core/store"
	"github.com/sosgrid/sosd/internal/eventbus"
)

// Engine coordinates the emergency lifecycle.
type Engine struct {
	cfg      Config
	registry registry.Store
	store    store.EmergencyStore
	gateway  gateway.Publisher
	bus      *eventbus.Bus[events.Event]
	metrics  coremetrics.Sink
	log      logger.Logger
	now      func() time.Time
}

// NewEngine creates an Engine. registry, store and publisher are required;
// bus, sink and log may be nil.
func NewEngine(cfg Config, reg registry.Store, st store.EmergencyStore, pub gateway.Publisher, bus *eventbus.Bus[events.Event], sink coremetrics.Sink, log logger.Logger) (*Engine, error) {
	if reg == nil || st == nil || pub == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		cfg:      cfg,
		registry: reg,
		store:    st,
		gateway:  pub,
		bus:      bus,
		metrics:  sink,
		log:      log,
		now:      time.Now,
	}, nil
}

// ReportRequest is an incoming distress report.
type ReportRequest struct {
	Type     string
	Location model.Location
	Priority model.Priority // optional, defaults by source
	Source   model.Source
	UserID   string
	UserInfo string
}

// ReportResult is returned to the reporter once the record is persisted and
// fan-out has been attempted. The reporter never waits for any team to react.
type ReportResult struct {
	EmergencyID string
	NearbyTeams int
}

// Report validates and persists a new emergency, ranks the available teams
// around it, broadcasts an alert carrying the ranked list and pushes a
// targeted urgent notice to the closest teams.
func (e *Engine) Report(ctx context.Context, req ReportRequest) (ReportResult, error) {
	if req.Type == "" {
		return ReportResult{}, &ValidationError{Field: "type", Reason: "required"}
	}
	if err := req.Location.Validate(); err != nil {
		return ReportResult{}, &ValidationError{Field: "location", Reason: err.Error()}
	}
	priority := req.Priority
	if priority == "" {
		priority = req.Source.DefaultPriority()
	}
	if !priority.Valid() {
		return ReportResult{}, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
	}

	now := e.now()
	em := model.Emergency{
		ID:        model.NewEmergencyID(req.Source, now),
		Type:      req.Type,
		Location:  req.Location,
		Priority:  priority,
		Status:    model.EmergencyPending,
		UserID:    req.UserID,
		UserInfo:  req.UserInfo,
		CreatedAt: now,
	}
	if err := e.store.Create(ctx, em); err != nil {
		return ReportResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	nearby := e.rankAvailable(em.Location, req.Source)
	e.log.Infof("emergency %s (%s, %s) reported, %d teams nearby", em.ID, em.Type, priority, len(nearby))

	e.gateway.Broadcast(gateway.EventEmergencyAlert, gateway.AlertPayload{
		Emergency:   em,
		NearbyTeams: nearbyPayload(nearby),
	})
	for i, m := range nearby {
		if i >= e.cfg.UrgentNotifyCount {
			break
		}
		e.gateway.DeliverToTeam(m.Team.TeamID, gateway.EventUrgentAlert, gateway.UrgentAlertPayload{
			EmergencyID: em.ID,
			Type:        em.Type,
			Location:    em.Location,
			Priority:    em.Priority,
			DistanceKm:  geo.RoundKm(m.DistanceKm),
		})
	}

	e.publish(events.AlertEvent{Emergency: em, Nearby: nearby})
	emergenciesReported.WithLabelValues(req.Source.String(), string(priority)).Inc()
	nearbyTeamsFound.Observe(float64(len(nearby)))
	if err := e.metrics.RecordReport(coremetrics.ReportEvent{
		EmergencyID: em.ID,
		Type:        em.Type,
		Priority:    priority,
		Source:      req.Source,
		NearbyTeams: len(nearby),
		Time:        now,
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	return ReportResult{EmergencyID: em.ID, NearbyTeams: len(nearby)}, nil
}

// rankAvailable snapshots the registry, keeps available teams and ranks them
// around origin with the source-dependent radius and cap.
func (e *Engine) rankAvailable(origin model.Location, source model.Source) []geo.Match {
	snap := e.registry.Snapshot()
	candidates := make([]model.TeamPresence, 0, len(snap))
	for _, p := range snap {
		if p.Status == model.StatusAvailable {
			candidates = append(candidates, p)
		}
	}
	radius, limit := e.cfg.DefaultRadiusKm, 0
	if source == model.SourceMobile {
		radius, limit = e.cfg.SOSRadiusKm, e.cfg.MaxNearby
	}
	return geo.Rank(origin, candidates, radius, limit)
}

// AssignRequest assigns teams to an emergency. Location and Type are
// optional hints used for the assignment push when the durable record
// cannot be loaded.
type AssignRequest struct {
	EmergencyID string
	TeamIDs     []string
	Location    model.Location
	Type        string
}

// AssignResult reports the outcome of an assignment. Persisted is false when
// the store had no record (or was unavailable) and only the realtime path
// was served.
type AssignResult struct {
	EmergencyID string
	TeamIDs     []string
	Persisted   bool
}

// Assign moves the emergency to assigned, flips each team to busy and pushes
// a targeted assignment message to every team. Dispatch must not stall on
// persistence lag: a missing record downgrades the result to Persisted=false
// instead of blocking the fan-out, and a store failure is returned alongside
// the already-delivered result. Resolved and cancelled records are terminal;
// assigning them is a logged no-op.
func (e *Engine) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	if req.EmergencyID == "" {
		return AssignResult{}, &ValidationError{Field: "emergencyId", Reason: "required"}
	}
	if len(req.TeamIDs) == 0 {
		return AssignResult{}, &ValidationError{Field: "teamIds", Reason: "at least one team required"}
	}

	loc, typ := req.Location, req.Type
	persisted := false
	var perr error
	em, err := e.store.FindByID(ctx, req.EmergencyID)
	switch {
	case err == nil:
		if em.Status.Terminal() {
			e.log.Debugf("emergency %s already %s, assignment ignored", req.EmergencyID, em.Status)
			return AssignResult{EmergencyID: req.EmergencyID}, nil
		}
		loc, typ = em.Location, em.Type
		if uerr := e.store.SetAssignment(ctx, req.EmergencyID, req.TeamIDs); uerr != nil {
			perr = fmt.Errorf("%w: %v", ErrPersistence, uerr)
		} else {
			persisted = true
		}
	case errors.Is(err, store.ErrNotFound):
		e.log.Warnf("assignment for unknown emergency %s, serving realtime path only", req.EmergencyID)
	default:
		perr = fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	for _, teamID := range req.TeamIDs {
		e.registry.SetStatus(teamID, model.StatusBusy)
		e.gateway.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: teamID, Status: model.StatusBusy})
		e.gateway.DeliverToTeam(teamID, gateway.EventAssignEmergency, gateway.AssignmentPayload{
			EmergencyID: req.EmergencyID,
			TeamID:      teamID,
			Type:        typ,
			Location:    loc,
		})
		teamsAssigned.Inc()
	}
	e.log.Infof("emergency %s assigned to %v (persisted=%t)", req.EmergencyID, req.TeamIDs, persisted)

	e.publish(events.AssignmentEvent{EmergencyID: req.EmergencyID, TeamIDs: req.TeamIDs, Persisted: persisted})
	if err := e.metrics.RecordAssignment(coremetrics.AssignmentEvent{
		EmergencyID: req.EmergencyID,
		Teams:       len(req.TeamIDs),
		Persisted:   persisted,
		Time:        e.now(),
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	return AssignResult{EmergencyID: req.EmergencyID, TeamIDs: req.TeamIDs, Persisted: persisted}, perr
}

// Complete marks the emergency resolved and returns the completing team to
// the available pool. Only an assigned emergency can be resolved: an unknown
// or still-pending emergency is logged and ignored, and a second completion
// is a no-op that leaves resolvedAt untouched.
func (e *Engine) Complete(ctx context.Context, emergencyID, teamID string) error {
	if emergencyID == "" {
		return &ValidationError{Field: "emergencyId", Reason: "required"}
	}
	em, err := e.store.FindByID(ctx, emergencyID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warnf("completion for unknown emergency %s ignored", emergencyID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if em.Status != model.EmergencyAssigned {
		e.log.Debugf("emergency %s is %s, completion ignored", emergencyID, em.Status)
		return nil
	}

	resolvedAt := e.now()
	if err := e.store.SetStatus(ctx, emergencyID, model.EmergencyResolved, resolvedAt); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if teamID != "" {
		e.registry.SetStatus(teamID, model.StatusAvailable)
		e.gateway.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: teamID, Status: model.StatusAvailable})
	}
	e.gateway.Broadcast(gateway.EventEmergencyCompleted, gateway.CompletionPayload{
		EmergencyID: emergencyID,
		TeamID:      teamID,
		ResolvedAt:  resolvedAt,
	})
	e.log.Infof("emergency %s resolved by %s", emergencyID, teamID)

	e.publish(events.CompletionEvent{EmergencyID: emergencyID, TeamID: teamID})
	emergenciesResolved.Inc()
	if err := e.metrics.RecordCompletion(coremetrics.CompletionEvent{
		EmergencyID: emergencyID,
		TeamID:      teamID,
		OpenFor:     resolvedAt.Sub(em.CreatedAt),
		Time:        resolvedAt,
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	return nil
}

// Cancel moves a pending or assigned emergency to cancelled and releases any
// assigned teams. Terminal or unknown emergencies are logged no-ops.
func (e *Engine) Cancel(ctx context.Context, emergencyID string) error {
	if emergencyID == "" {
		return &ValidationError{Field: "emergencyId", Reason: "required"}
	}
	em, err := e.store.FindByID(ctx, emergencyID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warnf("cancellation for unknown emergency %s ignored", emergencyID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if em.Status.Terminal() {
		e.log.Debugf("emergency %s already %s, cancellation ignored", emergencyID, em.Status)
		return nil
	}
	if err := e.store.SetStatus(ctx, emergencyID, model.EmergencyCancelled, time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, teamID := range em.AssignedTeams {
		e.registry.SetStatus(teamID, model.StatusAvailable)
		e.gateway.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: teamID, Status: model.StatusAvailable})
	}
	e.gateway.Broadcast(gateway.EventEmergencyCancelled, gateway.CancellationPayload{
		EmergencyID:   emergencyID,
		ReleasedTeams: em.AssignedTeams,
	})
	e.log.Infof("emergency %s cancelled", emergencyID)
	e.publish(events.CancellationEvent{EmergencyID: emergencyID, ReleasedTeams: em.AssignedTeams})
	return nil
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func nearbyPayload(matches []geo.Match) []gateway.NearbyTeam {
	out := make([]gateway.NearbyTeam, 0, len(matches))
	for _, m := range matches {
		out = append(out, gateway.NearbyTeam{
			TeamID:     m.Team.TeamID,
			TeamType:   m.Team.Type,
			Status:     m.Team.Status,
			Location:   m.Team.Location,
			DistanceKm: geo.RoundKm(m.DistanceKm),
		})
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
