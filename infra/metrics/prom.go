package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/sosgrid/sosd/core/metrics"
)

// PromSink records emergency lifecycle events in Prometheus metrics.
type PromSink struct {
	reports     *prometheus.CounterVec
	assignments *prometheus.CounterVec
	openFor     prometheus.Histogram
}

// NewPromSink registers the sink metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_reports_total",
		Help: "Total number of recorded emergency reports",
	}, []string{"source", "priority"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_assignments_total",
		Help: "Total number of recorded assignment operations",
	}, []string{"persisted"})
	openFor := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sos_open_duration_seconds",
		Help:    "Time between report and resolution",
		Buckets: prometheus.ExponentialBuckets(30, 2, 12),
	})

	if err := reg.Register(reports); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reports = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(openFor); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			openFor = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &PromSink{reports: reports, assignments: assignments, openFor: openFor}, nil
}

// RecordReport increments the report counter.
func (s *PromSink) RecordReport(ev coremetrics.ReportEvent) error {
	s.reports.WithLabelValues(ev.Source.String(), string(ev.Priority)).Inc()
	return nil
}

// RecordAssignment increments the assignment counter.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(strconv.FormatBool(ev.Persisted)).Inc()
	return nil
}

// RecordCompletion observes how long the emergency stayed open.
func (s *PromSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	s.openFor.Observe(ev.OpenFor.Seconds())
	return nil
}
