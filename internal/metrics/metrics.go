package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsStored tracks durable event records written per event type
	EventsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_event_records_stored_total",
			Help: "Total number of event records persisted",
		},
		[]string{"event_type"},
	)

	// EventsCompleted tracks records reaching a terminal state
	EventsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_event_records_completed_total",
			Help: "Total number of event records transitioned to a terminal state",
		},
		[]string{"event_type", "state"},
	)

	// EventsRetried tracks scheduled retries per event type
	EventsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_event_records_retried_total",
			Help: "Total number of retry re-arms on event records",
		},
		[]string{"event_type"},
	)

	// EventsCleaned tracks completed records removed by cleanup
	EventsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_event_records_cleaned_total",
			Help: "Total number of completed event records deleted by cleanup",
		},
	)

	// RecoveryAttempts tracks recovery passes started
	RecoveryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_recovery_attempts_total",
			Help: "Total number of recovery passes started",
		},
	)

	// RecoveredEvents tracks events re-published by recovery
	RecoveredEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_recovery_events_recovered_total",
			Help: "Total number of interrupted events re-published",
		},
		[]string{"event_type"},
	)

	// RecoveryFailures tracks recovery passes that ended in error
	RecoveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_recovery_failures_total",
			Help: "Total number of recovery passes that failed",
		},
	)
)
