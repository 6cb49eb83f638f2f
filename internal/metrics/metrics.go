// Package metrics defines the daemon's prometheus instrumentation,
// exposed on the debug server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_events_ingested_total",
		Help: "Inbound stream events applied to the conversation index.",
	})

	EventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_events_skipped_total",
		Help: "Malformed inbound stream events logged and skipped.",
	})

	Resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_resyncs_total",
		Help: "Full conversation resynchronizations by outcome.",
	}, []string{"outcome"})

	ProvisionCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_provision_coalesced_total",
		Help: "Direct-conversation provisioning calls served by an in-flight request.",
	})

	FriendRequestOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_friend_request_ops_total",
		Help: "Friend request operations by kind and outcome.",
	}, []string{"op", "outcome"})

	StaleSearchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_stale_searches_dropped_total",
		Help: "Search results discarded because a newer search superseded them.",
	})
)
