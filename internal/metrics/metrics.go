package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total queue entries marked failed, by reason",
		},
		[]string{"reason"},
	)

	DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_delivery_attempts_total",
			Help: "SMTP delivery attempts by result",
		},
		[]string{"result"},
	)

	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_dispatch_cycles_total",
			Help: "Dispatch cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_dispatch_cycle_duration_seconds",
			Help:    "Wall time of one dispatch cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	PendingEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_queue_pending_entries",
			Help: "Claimable entries found at the start of the last cycle",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(DeliveryAttempts)
	prometheus.MustRegister(Cycles)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(PendingEntries)
}
