package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiprelay_events_ingested_total",
			Help: "Webhook ingestion results",
		},
		[]string{"result"}, // accepted-new|accepted-duplicate|rejected-malformed
	)

	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiprelay_events_processed_total",
			Help: "Inbound event processing outcomes by event type",
		},
		[]string{"outcome", "event_type"}, // success|retryable|fatal|already_processed
	)

	OutboundEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiprelay_outbound_enqueued_total",
			Help: "Outbound messages enqueued by kind",
		},
		[]string{"kind"},
	)

	OutboundDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiprelay_outbound_dispatched_total",
			Help: "Claimed outbound messages published by kind and result",
		},
		[]string{"kind", "result"}, // published|publish_failed
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiprelay_notifications_total",
			Help: "Notifier delivery results by kind",
		},
		[]string{"status", "kind"}, // delivered|undeliverable
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsIngested,
		EventsProcessed,
		OutboundEnqueued,
		OutboundDispatched,
		NotificationsTotal,
	)
}
