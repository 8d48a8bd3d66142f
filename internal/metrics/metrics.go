// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts login and refresh attempts by provider and outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gametracker",
		Name:      "auth_attempts_total",
		Help:      "Authentication attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	// CatalogUpserts counts game upserts by source and result (created, updated, failed).
	CatalogUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gametracker",
		Name:      "catalog_upserts_total",
		Help:      "Game upserts by source and result.",
	}, []string{"source", "result"})

	// LibraryEntries counts Steam library entries processed by result.
	LibraryEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gametracker",
		Name:      "library_entries_total",
		Help:      "Steam library entries processed by result.",
	}, []string{"result"})

	// RemoteRequests counts outbound API calls by service and outcome.
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gametracker",
		Name:      "remote_requests_total",
		Help:      "Outbound API requests by service and outcome.",
	}, []string{"service", "outcome"})

	// QueueMessages counts consumed queue messages by queue and outcome.
	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gametracker",
		Name:      "queue_messages_total",
		Help:      "Consumed queue messages by queue and outcome.",
	}, []string{"queue", "outcome"})
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
