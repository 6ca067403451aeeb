// Package metrics exposes the mapper's prometheus instrumentation: cluster
// registry gauges/counters and job warden counters. Collectors are package
// level and registered on the default registry, matching how the rest of
// the pack (arkeep, kubernaut) wires client_golang into a single process.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AgentsRegistered tracks the current number of live agents in the
	// cluster registry. Incremented on register, decremented on unregister
	// or reap.
	AgentsRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapperd",
		Subsystem: "cluster",
		Name:      "agents_registered",
		Help:      "Current number of agents known to the cluster registry.",
	})

	// AgentsReaped counts agents evicted for exceeding the heartbeat timeout.
	AgentsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapperd",
		Subsystem: "cluster",
		Name:      "agents_reaped_total",
		Help:      "Total number of agents evicted by the reap sweep.",
	})

	// JobsStarted counts jobs registered with the warden.
	JobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapperd",
		Subsystem: "warden",
		Name:      "jobs_started_total",
		Help:      "Total number of jobs registered with the warden.",
	})

	// JobsCompleted counts jobs that collated all expected replies.
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapperd",
		Subsystem: "warden",
		Name:      "jobs_completed_total",
		Help:      "Total number of jobs that completed normally.",
	})

	// JobsCancelled counts jobs cancelled before completion.
	JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapperd",
		Subsystem: "warden",
		Name:      "jobs_cancelled_total",
		Help:      "Total number of jobs cancelled before completion.",
	})

	// OfflineRedelivered counts envelopes re-dispatched from the offline queue.
	OfflineRedelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapperd",
		Subsystem: "offline",
		Name:      "redelivered_total",
		Help:      "Total number of envelopes redelivered from the offline queue.",
	})
)

func init() {
	prometheus.MustRegister(
		AgentsRegistered,
		AgentsReaped,
		JobsStarted,
		JobsCompleted,
		JobsCancelled,
		OfflineRedelivered,
	)
}
