package metrics

import (
	"time"

	"github.com/sosgrid/sosd/core/model"
)

// ReportEvent represents a processed emergency report to be recorded.
type ReportEvent struct {
	EmergencyID string
	Type        string
	Priority    model.Priority
	Source      model.Source
	NearbyTeams int
	Time        time.Time
}

// AssignmentEvent captures the outcome of an assignment operation.
type AssignmentEvent struct {
	EmergencyID string
	Teams       int
	Persisted   bool
	Time        time.Time
}

// CompletionEvent captures a resolution, including the time the emergency
// spent open.
type CompletionEvent struct {
	EmergencyID string
	TeamID      string
	OpenFor     time.Duration
	Time        time.Time
}

// Sink records dispatch events for observability purposes.
type Sink interface {
	RecordReport(ev ReportEvent) error
	RecordAssignment(ev AssignmentEvent) error
	RecordCompletion(ev CompletionEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordReport(ReportEvent) error         { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error { return nil }
func (NopSink) RecordCompletion(CompletionEvent) error { return nil }
