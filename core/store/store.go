// Package store defines the narrow persistence façade the dispatch core
// depends on. Durable storage is an external concern; the core only needs
// create, find and two conditional updates keyed by emergency ID.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sosgrid/sosd/core/model"
)

// ErrNotFound is returned when no emergency exists for the given ID.
var ErrNotFound = errors.New("emergency not found")

// EmergencyStore persists emergency records. Implementations must provide
// per-record atomicity; the core never holds registry locks across calls
// and tolerates slow backends.
type EmergencyStore interface {
	// Create persists a new record. The ID must be unique.
	Create(ctx context.Context, em model.Emergency) error

	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, id string) (model.Emergency, error)

	// FindByStatus returns every record in the given status, oldest first.
	FindByStatus(ctx context.Context, status model.EmergencyStatus) ([]model.Emergency, error)

	// SetAssignment replaces the assigned teams and moves the record to
	// assigned. The last assignment wins; there is no merge.
	SetAssignment(ctx context.Context, id string, teamIDs []string) error

	// SetStatus moves the record to status. resolvedAt is stored only when
	// the new status is resolved.
	SetStatus(ctx context.Context, id string, status model.EmergencyStatus, resolvedAt time.Time) error
}
