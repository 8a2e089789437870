package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	emergenciesReported *prometheus.CounterVec
	teamsAssigned       prometheus.Counter
	emergenciesResolved prometheus.Counter
	nearbyTeamsFound    prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	rep := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergencies_reported_total",
			Help: "Number of emergency reports accepted",
		},
		[]string{"source", "priority"},
	)
	asn := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teams_assigned_total",
			Help: "Number of team assignments pushed",
		},
	)
	res := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emergencies_resolved_total",
			Help: "Number of emergencies marked resolved",
		},
	)
	near := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearby_teams_found",
			Help:    "Candidate teams found per emergency report",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)
	return rep, asn, res, near
}

func init() {
	emergenciesReported, teamsAssigned, emergenciesResolved, nearbyTeamsFound = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(emergenciesReported, teamsAssigned, emergenciesResolved, nearbyTeamsFound)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	emergenciesReported, teamsAssigned, emergenciesResolved, nearbyTeamsFound = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
