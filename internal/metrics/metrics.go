package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges shared by every component. Operators read these
// through the /metrics endpoint; nothing in the pipeline depends on them.
var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_events_published_total",
		Help: "Events accepted by the bus per topic",
	}, []string{"topic"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_events_delivered_total",
		Help: "Handler invocations per topic and consumer group",
	}, []string{"topic", "group"})

	StageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_stage_retries_total",
		Help: "Stage handler retries per stage",
	}, []string{"stage"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_dead_letters_total",
		Help: "Posts dead-lettered per failing stage",
	}, []string{"stage"})

	DuplicateDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_duplicate_deliveries_total",
		Help: "Deliveries skipped by the stage idempotency check",
	}, []string{"stage"})

	LeasesAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodatlas_leases_acquired_total",
		Help: "Fetch leases handed out",
	})

	LeasesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodatlas_leases_reclaimed_total",
		Help: "Expired leases reclaimed by the sweep",
	})

	StaleLeaseReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodatlas_stale_lease_reports_total",
		Help: "ReportResult calls carrying an outdated token",
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodatlas_fetch_failures_total",
		Help: "Failed fetch attempts per country",
	}, []string{"country"})

	AggregateUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodatlas_aggregate_updates_total",
		Help: "Classification events folded into a country aggregate",
	})

	AggregateRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodatlas_aggregate_recomputes_total",
		Help: "Full recomputes from the classification log",
	})

	CountriesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moodatlas_countries_tracked",
		Help: "Countries with scheduler state",
	})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moodatlas_handler_duration_seconds",
		Help:    "Stage handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)
