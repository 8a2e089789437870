// Package reaper evicts stale team presence. Teams that stop sending
// location or status updates eventually disappear from the registry even if
// their transport session never closed cleanly.
package reaper

import (
	"context"
	"time"

	"github.com/sosgrid/sosd/core/events"
	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/logger"
	"github.com/sosgrid/sosd/core/registry"
	"github.com/sosgrid/sosd/internal/eventbus"
)

// Config defines the sweep cadence and the inactivity threshold.
type Config struct {
	IntervalSeconds  int `json:"interval_seconds"`
	ThresholdSeconds int `json:"threshold_seconds"`
}

// SetDefaults applies the 5 minute sweep / 10 minute threshold defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 300
	}
	if c.ThresholdSeconds <= 0 {
		c.ThresholdSeconds = 600
	}
}

// Reaper periodically removes registry entries whose LastUpdate is older
// than the threshold and broadcasts a disconnection notice per eviction.
type Reaper struct {
	registry  registry.Store
	gateway   gateway.Publisher
	bus       *eventbus.Bus[events.Event]
	log       logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// New creates a Reaper.
func New(cfg Config, reg registry.Store, pub gateway.Publisher, bus *eventbus.Bus[events.Event], log logger.Logger) *Reaper {
	cfg.SetDefaults()
	return &Reaper{
		registry:  reg,
		gateway:   pub,
		bus:       bus,
		log:       log,
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		threshold: time.Duration(cfg.ThresholdSeconds) * time.Second,
		now:       time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep evicts every stale entry. It iterates a snapshot so concurrent
// upserts never contend with the sweep, and the removal re-checks staleness
// so a team that reported between snapshot and removal stays registered. A
// broadcast problem for one entry cannot abort the rest because publishes
// are one-way.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.threshold)
	evicted := 0
	for _, p := range r.registry.Snapshot() {
		if p.LastUpdate.After(cutoff) {
			continue
		}
		if !r.registry.RemoveIfStale(p.TeamID, cutoff) {
			continue
		}
		evicted++
		r.log.Infof("evicted inactive team %s (last update %s)", p.TeamID, p.LastUpdate.Format(time.RFC3339))
		r.gateway.Broadcast(gateway.EventTeamDisconnected, gateway.DisconnectPayload{
			TeamID: p.TeamID,
			Reason: "inactive",
		})
		if r.bus != nil {
			r.bus.Publish(events.DisconnectEvent{TeamID: p.TeamID, Reason: "inactive"})
		}
	}
	return evicted
}
