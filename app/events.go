package app

import (
	"context"

	"github.com/sosgrid/sosd/core/events"
	"github.com/sosgrid/sosd/core/logger"
	"github.com/sosgrid/sosd/internal/eventbus"
)

// watchEvents consumes the domain event bus and emits one structured log
// line per event. It returns when the context is cancelled or the bus
// closes.
func watchEvents(ctx context.Context, bus *eventbus.Bus[events.Event], log logger.Logger) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logEvent(log, ev)
		case <-ctx.Done():
			return
		}
	}
}

func logEvent(log logger.Logger, ev events.Event) {
	switch e := ev.(type) {
	case events.AlertEvent:
		log.Debugw("emergency reported", map[string]any{
			"emergency_id": e.Emergency.ID,
			"type":         e.Emergency.Type,
			"priority":     string(e.Emergency.Priority),
			"nearby_teams": len(e.Nearby),
		})
	case events.AssignmentEvent:
		log.Debugw("teams assigned", map[string]any{
			"emergency_id": e.EmergencyID,
			"teams":        e.TeamIDs,
			"persisted":    e.Persisted,
		})
	case events.CompletionEvent:
		log.Debugw("emergency resolved", map[string]any{
			"emergency_id": e.EmergencyID,
			"team_id":      e.TeamID,
		})
	case events.CancellationEvent:
		log.Debugw("emergency cancelled", map[string]any{
			"emergency_id":   e.EmergencyID,
			"released_teams": e.ReleasedTeams,
		})
	case events.StatusEvent:
		log.Debugw("team status changed", map[string]any{
			"team_id": e.TeamID,
			"status":  string(e.Status),
		})
	case events.DisconnectEvent:
		log.Debugw("team presence evicted", map[string]any{
			"team_id": e.TeamID,
			"reason":  e.Reason,
		})
	}
}
