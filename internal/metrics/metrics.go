// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AccessDecisions counts guard outcomes: allow, unauthenticated, denied, config_error.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdesk_access_decisions_total",
		Help: "Guarded route decisions by outcome",
	}, []string{"outcome"})

	// RoleResolutionDegraded counts role lookups that fell back to viewer after a store error.
	RoleResolutionDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventdesk_role_resolution_degraded_total",
		Help: "Event role resolutions that degraded to viewer",
	})

	// CollaboratorMutations counts collaborator writes by operation.
	CollaboratorMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdesk_collaborator_mutations_total",
		Help: "Collaborator add/remove/redeem operations",
	}, []string{"op"})

	// ThreadTransitions counts thread lifecycle events by kind.
	ThreadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdesk_thread_transitions_total",
		Help: "Thread created/message/resolved/reopened events",
	}, []string{"kind"})

	// NotificationJobs counts processed notification jobs by final status.
	NotificationJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdesk_notification_jobs_total",
		Help: "Notification jobs by status",
	}, []string{"status"})

	// RealtimeSubscribers tracks open listener connections.
	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventdesk_realtime_subscribers",
		Help: "Open realtime listener connections",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
