// Package gateway defines the one-way publish contract between the dispatch
// core and the realtime transport. Delivery is best-effort by design: there
// is no acknowledgment, no retry, and the absence of a recipient session is
// not an error.
package gateway

// Publisher fans events out to connected sessions.
type Publisher interface {
	// Broadcast delivers the event to every connected session.
	Broadcast(event string, payload any)

	// DeliverToTeam delivers the event to every session bound to teamID.
	// The call is a silent no-op when no session is bound.
	DeliverToTeam(teamID, event string, payload any)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Broadcast(string, any)             {}
func (NopPublisher) DeliverToTeam(string, string, any) {}
