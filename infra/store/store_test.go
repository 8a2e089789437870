package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sosgrid/sosd/core/model"
	corestore "github.com/sosgrid/sosd/core/store"
)

func fixtures(t *testing.T) []corestore.EmergencyStore {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "emergencies.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return []corestore.EmergencyStore{NewMemoryStore(), sq}
}

func sampleEmergency(id string) model.Emergency {
	return model.Emergency{
		ID:        id,
		Type:      "fire",
		Location:  model.Location{Latitude: 5.55, Longitude: -0.19},
		Priority:  model.PriorityHigh,
		Status:    model.EmergencyPending,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_CreateFind(t *testing.T) {
	for _, s := range fixtures(t) {
		ctx := context.Background()
		if err := s.Create(ctx, sampleEmergency("EMG-1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		em, err := s.FindByID(ctx, "EMG-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if em.Type != "fire" || em.Status != model.EmergencyPending || len(em.AssignedTeams) != 0 {
			t.Fatalf("unexpected record: %#v", em)
		}
		if _, err := s.FindByID(ctx, "EMG-missing"); !errors.Is(err, corestore.ErrNotFound) {
			t.Fatalf("missing id: got %v, want ErrNotFound", err)
		}
	}
}

func TestStore_Assignment(t *testing.T) {
	for _, s := range fixtures(t) {
		ctx := context.Background()
		if err := s.Create(ctx, sampleEmergency("EMG-2")); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.SetAssignment(ctx, "EMG-2", []string{"Team-1", "Team-2"}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		// Last assignment wins, no merge.
		if err := s.SetAssignment(ctx, "EMG-2", []string{"Team-3"}); err != nil {
			t.Fatalf("reassign: %v", err)
		}
		em, err := s.FindByID(ctx, "EMG-2")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if em.Status != model.EmergencyAssigned {
			t.Fatalf("status = %s, want assigned", em.Status)
		}
		if len(em.AssignedTeams) != 1 || em.AssignedTeams[0] != "Team-3" {
			t.Fatalf("assigned teams = %v", em.AssignedTeams)
		}
		if err := s.SetAssignment(ctx, "EMG-none", []string{"Team-1"}); !errors.Is(err, corestore.ErrNotFound) {
			t.Fatalf("assign missing: got %v", err)
		}
	}
}

func TestStore_Resolve(t *testing.T) {
	for _, s := range fixtures(t) {
		ctx := context.Background()
		if err := s.Create(ctx, sampleEmergency("SOS-3")); err != nil {
			t.Fatalf("create: %v", err)
		}
		at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
		if err := s.SetStatus(ctx, "SOS-3", model.EmergencyResolved, at); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		em, err := s.FindByID(ctx, "SOS-3")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if em.Status != model.EmergencyResolved || em.ResolvedAt == nil || !em.ResolvedAt.Equal(at) {
			t.Fatalf("resolution not stored: %#v", em)
		}
	}
}

func TestStore_FindByStatus(t *testing.T) {
	for _, s := range fixtures(t) {
		ctx := context.Background()
		first := sampleEmergency("EMG-10")
		second := sampleEmergency("EMG-11")
		second.CreatedAt = first.CreatedAt.Add(time.Minute)
		resolved := sampleEmergency("EMG-12")
		resolved.CreatedAt = first.CreatedAt.Add(2 * time.Minute)
		for _, em := range []model.Emergency{second, first, resolved} {
			if err := s.Create(ctx, em); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		if err := s.SetStatus(ctx, "EMG-12", model.EmergencyCancelled, time.Time{}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		pending, err := s.FindByStatus(ctx, model.EmergencyPending)
		if err != nil {
			t.Fatalf("find by status: %v", err)
		}
		if len(pending) != 2 || pending[0].ID != "EMG-10" || pending[1].ID != "EMG-11" {
			t.Fatalf("pending = %#v", pending)
		}
	}
}
