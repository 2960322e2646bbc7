// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GuessesAccepted counts guesses that passed every phase gate.
	GuessesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "friendexing_guesses_accepted_total",
		Help: "Guesses accepted by the state machine.",
	})

	// GuessesRejected counts rejected guesses by named rejection.
	GuessesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friendexing_guesses_rejected_total",
		Help: "Guesses rejected by the state machine, by reason.",
	}, []string{"reason"})

	// RoundsResolved counts completed round reconciliations.
	RoundsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "friendexing_rounds_resolved_total",
		Help: "Rounds reconciled by an admin answer.",
	})

	// EventsBroadcast counts fan-out events by type.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friendexing_events_broadcast_total",
		Help: "Events pushed to broadcast groups, by event type.",
	}, []string{"event_type"})

	// ActiveConnections tracks currently registered websocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "friendexing_active_connections",
		Help: "Currently registered websocket connections.",
	})

	// ImageJobs counts image acquisition jobs by outcome.
	ImageJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friendexing_image_jobs_total",
		Help: "Image acquisition jobs, by outcome.",
	}, []string{"outcome"})

	// ImageJobDuration observes end-to-end image acquisition job latency.
	ImageJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "friendexing_image_job_duration_seconds",
		Help:    "End-to-end image acquisition job duration.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)
