package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sosgrid/sosd/core/events"
	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/registry"
	corestore "github.com/sosgrid/sosd/core/store"
	"github.com/sosgrid/sosd/internal/eventbus"
	infrastore "github.com/sosgrid/sosd/infra/store"
)

// kmLat converts a northward distance in km to degrees of latitude.
func kmLat(km float64) float64 { return km / 111.195 }

type fixture struct {
	engine   *Engine
	registry *registry.MemoryStore
	store    corestore.EmergencyStore
	gateway  *gateway.Recorder
	bus      *eventbus.Bus[events.Event]
}

func newFixture(t *testing.T, st corestore.EmergencyStore) *fixture {
	t.Helper()
	if st == nil {
		st = infrastore.NewMemoryStore()
	}
	reg := registry.NewMemoryStore()
	rec := gateway.NewRecorder()
	bus := eventbus.New[events.Event]()
	eng, err := NewEngine(Config{}, reg, st, rec, bus, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{engine: eng, registry: reg, store: st, gateway: rec, bus: bus}
}

func TestReport_Validation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		req  ReportRequest
	}{
		{"missing type", ReportRequest{Location: model.Location{Latitude: 1}}},
		{"nan latitude", ReportRequest{Type: "fire", Location: model.Location{Latitude: nan()}}},
		{"latitude out of range", ReportRequest{Type: "fire", Location: model.Location{Latitude: 95}}},
		{"bad priority", ReportRequest{Type: "fire", Priority: "urgent-ish"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.Report(context.Background(), tc.req); !IsValidation(err) {
				t.Fatalf("got %v, want ValidationError", err)
			}
		})
	}
	if len(f.gateway.Broadcasts) != 0 {
		t.Fatalf("validation failure must not fan out")
	}
}

func TestReport_PendingWithRankedNearby(t *testing.T) {
	f := newFixture(t, nil)
	origin := model.Location{Latitude: 5.0, Longitude: 0.0}
	f.registry.UpsertLocation("Team-3km", model.Location{Latitude: 5.0 + kmLat(3)}, model.TeamFire, "")
	f.registry.UpsertLocation("Team-1km", model.Location{Latitude: 5.0 + kmLat(1)}, model.TeamAmbulance, "")
	f.registry.UpsertLocation("Team-9km", model.Location{Latitude: 5.0 + kmLat(9)}, model.TeamPolice, "")

	res, err := f.engine.Report(context.Background(), ReportRequest{
		Type:     "health",
		Location: origin,
		Source:   model.SourceMobile,
		UserID:   "user-7",
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.NearbyTeams != 3 {
		t.Fatalf("nearby = %d, want 3", res.NearbyTeams)
	}

	em, err := f.store.FindByID(context.Background(), res.EmergencyID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if em.Status != model.EmergencyPending || len(em.AssignedTeams) != 0 {
		t.Fatalf("new emergency must be pending with no teams: %#v", em)
	}
	if em.Priority != model.PriorityCritical {
		t.Fatalf("mobile default priority = %s, want critical", em.Priority)
	}

	alerts := f.gateway.BroadcastsOf(gateway.EventEmergencyAlert)
	if len(alerts) != 1 {
		t.Fatalf("want one alert broadcast, got %d", len(alerts))
	}
	payload := alerts[0].Payload.(gateway.AlertPayload)
	want := []string{"Team-1km", "Team-3km", "Team-9km"}
	if len(payload.NearbyTeams) != 3 {
		t.Fatalf("alert nearby = %#v", payload.NearbyTeams)
	}
	for i, id := range want {
		if payload.NearbyTeams[i].TeamID != id {
			t.Fatalf("alert order[%d] = %s, want %s", i, payload.NearbyTeams[i].TeamID, id)
		}
	}
	// Top 3 of 3: every team receives the urgent targeted alert.
	for _, id := range want {
		if len(f.gateway.TargetedFor(id)) != 1 {
			t.Fatalf("team %s missing urgent alert", id)
		}
	}
}

func TestReport_MobileRadiusAndCap(t *testing.T) {
	f := newFixture(t, nil)
	origin := model.Location{Latitude: 5.0, Longitude: 0.0}
	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("Team-%d", i)
		f.registry.UpsertLocation(id, model.Location{Latitude: 5.0 + kmLat(float64(i))}, "", "")
	}
	f.registry.UpsertLocation("Team-far", model.Location{Latitude: 5.0 + kmLat(30)}, "", "")

	res, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "crime", Location: origin, Source: model.SourceMobile,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.NearbyTeams != 5 {
		t.Fatalf("mobile cap: nearby = %d, want 5", res.NearbyTeams)
	}
	// Urgent notices go to the closest three only.
	if len(f.gateway.Targeted) != 3 {
		t.Fatalf("urgent notices = %d, want 3", len(f.gateway.Targeted))
	}
	if len(f.gateway.TargetedFor("Team-far")) != 0 {
		t.Fatalf("team outside radius must not be notified")
	}
}

func TestReport_ConsoleUnrestricted(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.UpsertLocation("Team-far", model.Location{Latitude: 50}, "", "")
	res, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.NearbyTeams != 1 {
		t.Fatalf("console ranking must be unrestricted, nearby = %d", res.NearbyTeams)
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Priority != model.PriorityHigh {
		t.Fatalf("console default priority = %s, want high", em.Priority)
	}
}

func TestReport_SkipsUnavailableTeams(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.UpsertLocation("Team-busy", model.Location{Latitude: 5.001}, "", model.StatusBusy)
	f.registry.UpsertLocation("Team-free", model.Location{Latitude: 5.002}, "", "")
	res, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceMobile,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.NearbyTeams != 1 {
		t.Fatalf("busy team ranked: nearby = %d", res.NearbyTeams)
	}
}

func TestReport_PersistenceFailure(t *testing.T) {
	f := newFixture(t, failingStore{})
	_, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5},
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if len(f.gateway.Broadcasts) != 0 {
		t.Fatalf("failed report must not fan out")
	}
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.engine.Assign(context.Background(), AssignRequest{EmergencyID: "EMG-1"}); !IsValidation(err) {
		t.Fatalf("empty teamIds: got %v", err)
	}
	if _, err := f.engine.Assign(context.Background(), AssignRequest{TeamIDs: []string{"Team-1"}}); !IsValidation(err) {
		t.Fatalf("empty emergencyId: got %v", err)
	}
}

func TestAssign_MovesTeamsAndRecord(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	f.registry.UpsertLocation("Team-a", model.Location{Latitude: 5.01}, "", "")
	f.registry.UpsertLocation("Team-b", model.Location{Latitude: 5.02}, "", "")

	out, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: res.EmergencyID,
		TeamIDs:     []string{"Team-a", "Team-b"},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !out.Persisted {
		t.Fatalf("assignment should be persisted")
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyAssigned {
		t.Fatalf("status = %s, want assigned", em.Status)
	}
	if len(em.AssignedTeams) != 2 || em.AssignedTeams[0] != "Team-a" || em.AssignedTeams[1] != "Team-b" {
		t.Fatalf("assigned teams = %v", em.AssignedTeams)
	}
	for _, id := range []string{"Team-a", "Team-b"} {
		p, _ := f.registry.Get(id)
		if p.Status != model.StatusBusy {
			t.Fatalf("team %s status = %s, want busy", id, p.Status)
		}
		pushes := f.gateway.TargetedFor(id)
		if len(pushes) != 1 || pushes[0].Event != gateway.EventAssignEmergency {
			t.Fatalf("team %s pushes = %#v", id, pushes)
		}
	}
}

func TestAssign_UnknownEmergencyServesRealtimePath(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: "EMG-ghost",
		TeamIDs:     []string{"Team-a"},
		Location:    model.Location{Latitude: 5, Longitude: 1},
		Type:        "fire",
	})
	if err != nil {
		t.Fatalf("unknown emergency must not be a hard failure: %v", err)
	}
	if out.Persisted {
		t.Fatalf("persisted flag must be false for unknown record")
	}
	pushes := f.gateway.TargetedFor("Team-a")
	if len(pushes) != 1 {
		t.Fatalf("assignment push missing: %#v", f.gateway.Targeted)
	}
	pay := pushes[0].Payload.(gateway.AssignmentPayload)
	if pay.Location.Longitude != 1 || pay.Type != "fire" {
		t.Fatalf("hint fields not used: %#v", pay)
	}
	p, _ := f.registry.Get("Team-a")
	if p.Status != model.StatusBusy {
		t.Fatalf("team not flipped busy")
	}
}

func TestAssign_StoreFailureStillFansOut(t *testing.T) {
	f := newFixture(t, failingStore{})
	out, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: "EMG-1",
		TeamIDs:     []string{"Team-a"},
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if out.Persisted {
		t.Fatalf("persisted flag must be false")
	}
	if len(f.gateway.TargetedFor("Team-a")) != 1 {
		t.Fatalf("fan-out must proceed on store failure")
	}
}

func TestAssign_TerminalIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	res, _ := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	f.registry.UpsertLocation("Team-a", model.Location{Latitude: 5.01}, "", "")
	if _, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: res.EmergencyID, TeamIDs: []string{"Team-a"},
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.engine.Complete(context.Background(), res.EmergencyID, "Team-a"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	resolvedAt := *em.ResolvedAt
	pushes := len(f.gateway.TargetedFor("Team-b"))

	out, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: res.EmergencyID, TeamIDs: []string{"Team-b"},
	})
	if err != nil {
		t.Fatalf("assign after resolve: %v", err)
	}
	if out.Persisted || len(out.TeamIDs) != 0 {
		t.Fatalf("terminal assignment must be a no-op: %#v", out)
	}
	em, _ = f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyResolved || !em.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("terminal record mutated: %#v", em)
	}
	if len(em.AssignedTeams) != 1 || em.AssignedTeams[0] != "Team-a" {
		t.Fatalf("assigned teams changed: %v", em.AssignedTeams)
	}
	if len(f.gateway.TargetedFor("Team-b")) != pushes {
		t.Fatalf("terminal assignment still pushed to the team")
	}
	if _, ok := f.registry.Get("Team-b"); ok {
		t.Fatalf("terminal assignment flipped an unknown team busy")
	}
}

func TestComplete_PendingIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	res, _ := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	if err := f.engine.Complete(context.Background(), res.EmergencyID, "Team-a"); err != nil {
		t.Fatalf("complete on pending: %v", err)
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyPending || em.ResolvedAt != nil {
		t.Fatalf("pending record resolved without assignment: %#v", em)
	}
	if len(f.gateway.BroadcastsOf(gateway.EventEmergencyCompleted)) != 0 {
		t.Fatalf("no-op completion broadcast")
	}
}

func TestComplete_ResolvesAndFreesTeam(t *testing.T) {
	f := newFixture(t, nil)
	res, _ := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	f.registry.UpsertLocation("Team-a", model.Location{Latitude: 5.01}, "", "")
	f.registry.UpsertLocation("Team-b", model.Location{Latitude: 5.02}, "", "")
	if _, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: res.EmergencyID, TeamIDs: []string{"Team-a", "Team-b"},
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := f.engine.Complete(context.Background(), res.EmergencyID, "Team-a"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyResolved || em.ResolvedAt == nil {
		t.Fatalf("not resolved: %#v", em)
	}
	a, _ := f.registry.Get("Team-a")
	if a.Status != model.StatusAvailable {
		t.Fatalf("Team-a status = %s, want available", a.Status)
	}
	// Team-b is untouched, whatever its state.
	b, _ := f.registry.Get("Team-b")
	if b.Status != model.StatusBusy {
		t.Fatalf("Team-b status = %s, want busy", b.Status)
	}
	if len(f.gateway.BroadcastsOf(gateway.EventEmergencyCompleted)) != 1 {
		t.Fatalf("completion not broadcast")
	}

	// Second completion is a no-op and resolvedAt is unchanged.
	first := *em.ResolvedAt
	if err := f.engine.Complete(context.Background(), res.EmergencyID, "Team-b"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	em, _ = f.store.FindByID(context.Background(), res.EmergencyID)
	if !em.ResolvedAt.Equal(first) {
		t.Fatalf("resolvedAt changed on repeated completion")
	}
	if len(f.gateway.BroadcastsOf(gateway.EventEmergencyCompleted)) != 1 {
		t.Fatalf("repeated completion broadcast")
	}
}

func TestComplete_UnknownIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.engine.Complete(context.Background(), "EMG-ghost", "Team-a"); err != nil {
		t.Fatalf("unknown completion must be a no-op: %v", err)
	}
	if len(f.gateway.Broadcasts) != 0 {
		t.Fatalf("no-op completion must not broadcast")
	}
}

func TestCancel_ReleasesTeams(t *testing.T) {
	f := newFixture(t, nil)
	res, _ := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	f.registry.UpsertLocation("Team-a", model.Location{Latitude: 5.01}, "", "")
	if _, err := f.engine.Assign(context.Background(), AssignRequest{
		EmergencyID: res.EmergencyID, TeamIDs: []string{"Team-a"},
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.engine.Cancel(context.Background(), res.EmergencyID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	em, _ := f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyCancelled {
		t.Fatalf("status = %s, want cancelled", em.Status)
	}
	p, _ := f.registry.Get("Team-a")
	if p.Status != model.StatusAvailable {
		t.Fatalf("assigned team not released")
	}
	// Cancellation is terminal: a later completion is ignored.
	if err := f.engine.Complete(context.Background(), res.EmergencyID, "Team-a"); err != nil {
		t.Fatalf("complete after cancel: %v", err)
	}
	em, _ = f.store.FindByID(context.Background(), res.EmergencyID)
	if em.Status != model.EmergencyCancelled {
		t.Fatalf("terminal state changed: %s", em.Status)
	}
}

func TestEngine_PublishesBusEvents(t *testing.T) {
	f := newFixture(t, nil)
	ch := f.bus.Subscribe()
	_, err := f.engine.Report(context.Background(), ReportRequest{
		Type: "fire", Location: model.Location{Latitude: 5}, Source: model.SourceConsole,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	select {
	case ev := <-ch:
		if _, ok := ev.(events.AlertEvent); !ok {
			t.Fatalf("unexpected event %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no bus event published")
	}
}

func nan() float64 {
	var zero float64
	return 0 / zero
}

// failingStore simulates an unavailable emergency store.
type failingStore struct{}

func (failingStore) Create(context.Context, model.Emergency) error {
	return errors.New("store down")
}

func (failingStore) FindByID(context.Context, string) (model.Emergency, error) {
	return model.Emergency{}, errors.New("store down")
}

func (failingStore) FindByStatus(context.Context, model.EmergencyStatus) ([]model.Emergency, error) {
	return nil, errors.New("store down")
}

func (failingStore) SetAssignment(context.Context, string, []string) error {
	return errors.New("store down")
}

func (failingStore) SetStatus(context.Context, string, model.EmergencyStatus, time.Time) error {
	return errors.New("store down")
}
