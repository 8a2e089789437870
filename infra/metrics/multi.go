package metrics

import coremetrics "github.com/sosgrid/sosd/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordReport forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordReport(ev coremetrics.ReportEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordReport(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAssignment forwards assignment outcomes.
func (m *MultiSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompletion forwards resolution events.
func (m *MultiSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCompletion(ev); err != nil {
			return err
		}
	}
	return nil
}
