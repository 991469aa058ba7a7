// Package metrics holds the Prometheus collectors for the turn pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarity_turns_total",
			Help: "Chat turns by terminal state",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clarity_turn_duration_seconds",
			Help:    "Wall time of a chat turn",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarity_generation_attempts_total",
			Help: "Generation stage attempts by stage and result",
		},
		[]string{"stage", "result"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clarity_context_source_duration_seconds",
			Help:    "Latency of a context source lookup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarity_context_source_failures_total",
			Help: "Context source lookups that degraded to an empty result",
		},
		[]string{"source"},
	)

	LeadsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarity_leads_captured_total",
			Help: "Captured leads by routing bucket",
		},
		[]string{"bucket"},
	)
)

var CRMSyncs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clarity_crm_syncs_total",
		Help: "Lead events forwarded to the CRM webhook by result",
	},
	[]string{"result"},
)
