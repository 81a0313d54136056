// Package observability holds the Prometheus collectors and OpenTelemetry
// setup shared by the service layers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LiveSubscriptions is the number of open standing queries by kind.
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "instafeed_live_subscriptions",
		Help: "Number of active live subscriptions",
	}, []string{"kind"})

	// LiveRefetchErrors counts standing-query refreshes that failed.
	LiveRefetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instafeed_live_refetch_errors_total",
		Help: "Total number of failed live subscription refreshes",
	}, []string{"kind"})

	// LiveFramesSent counts snapshots written to live sockets by kind.
	LiveFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instafeed_live_frames_sent_total",
		Help: "Total number of live snapshots written to WebSocket clients",
	}, []string{"kind"})

	// LiveEventsPublished counts change events by topic.
	LiveEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instafeed_live_events_published_total",
		Help: "Total number of change events published",
	}, []string{"topic"})

	// LedgerWrites counts edge mutations by ledger, operation and outcome.
	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instafeed_ledger_writes_total",
		Help: "Total number of follow/like/save edge mutations",
	}, []string{"ledger", "operation", "outcome"})

	// ActionsRejectedInFlight counts toggles refused because one was already pending.
	ActionsRejectedInFlight = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instafeed_actions_rejected_in_flight_total",
		Help: "Total number of actions rejected while an identical action was pending",
	}, []string{"action"})
)

// Outcome labels a ledger write for LedgerWrites.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
