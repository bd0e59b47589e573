package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcpay_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by outcome.",
	}, []string{"outcome"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcpay_events_processed_total",
		Help: "Verified webhook events processed by type.",
	}, []string{"type"})

	AdvisoryNotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcpay_advisory_notes_total",
		Help: "Advisory notes attached for manual review by kind.",
	}, []string{"kind"})

	PaymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcpay_payments_recorded_total",
		Help: "Local payments created from settled remote invoices.",
	})

	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcpay_refunds_total",
		Help: "Refund attempts by result.",
	}, []string{"result"})

	GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcpay_gateway_failures_total",
		Help: "Remote API failures by operation.",
	}, []string{"operation"})
)
