// Package metrics exposes prometheus counters for board and sprint activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReorderCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintboard",
		Subsystem: "issues",
		Name:      "reorder_total",
		Help:      "The total number of reorder requests by outcome",
	}, []string{"outcome"})

	ReorderRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprintboard",
		Subsystem: "issues",
		Name:      "reorder_rows_total",
		Help:      "The total number of issue rows written by reorder",
	})

	IssueCreateCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintboard",
		Subsystem: "issues",
		Name:      "create_total",
		Help:      "The total number of created issues",
	}, []string{"status"})

	TransitionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintboard",
		Subsystem: "sprints",
		Name:      "transition_total",
		Help:      "The total number of sprint transition requests",
	}, []string{"target", "outcome"})

	WebhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprintboard",
		Subsystem: "webhooks",
		Name:      "delivery_total",
		Help:      "The total number of webhook deliveries",
	}, []string{"outcome"})
)

// Outcome labels a request result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
