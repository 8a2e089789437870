package gateway

import "sync"

// Delivery records a single publish for inspection in tests.
type Delivery struct {
	TeamID  string // empty for broadcasts
	Event   string
	Payload any
}

// Recorder is a Publisher that records every delivery. It is used by engine
// and reaper tests.
type Recorder struct {
	mu         sync.Mutex
	Broadcasts []Delivery
	Targeted   []Delivery
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broadcasts = append(r.Broadcasts, Delivery{Event: event, Payload: payload})
}

func (r *Recorder) DeliverToTeam(teamID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Targeted = append(r.Targeted, Delivery{TeamID: teamID, Event: event, Payload: payload})
}

// TargetedFor returns the deliveries addressed to teamID.
func (r *Recorder) TargetedFor(teamID string) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.Targeted {
		if d.TeamID == teamID {
			out = append(out, d)
		}
	}
	return out
}

// BroadcastsOf returns the broadcasts carrying the given event name.
func (r *Recorder) BroadcastsOf(event string) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.Broadcasts {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out
}
