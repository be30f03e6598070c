package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchsentinel_events_consumed_total",
		Help: "Total number of broker messages handled, labelled by queue and outcome.",
	}, []string{"queue", "outcome"})

	DuplicatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchsentinel_duplicates_skipped_total",
		Help: "Total number of already-applied events suppressed by the dedup ledger.",
	}, []string{"stream"})

	TransactionsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchsentinel_transactions_flagged_total",
		Help: "Total number of flagged records created, labelled by decision source.",
	}, []string{"source"})

	CasesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchsentinel_cases_created_total",
		Help: "Total number of investigation cases materialized.",
	})

	NotificationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchsentinel_notifications_recorded_total",
		Help: "Total number of notification facts recorded.",
	})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchsentinel_publish_failures_total",
		Help: "Total number of failed event publishes, labelled by exchange.",
	}, []string{"exchange"})

	DailyCounters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchsentinel_daily_counter",
		Help: "Current value of today's daily counters, labelled by counter name.",
	}, []string{"counter"})
)
