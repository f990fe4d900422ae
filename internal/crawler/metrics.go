package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_search_requests_total",
		Help: "Total number of search page requests sent.",
	})

	searchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_search_retries_total",
		Help: "Total number of page retries by error class.",
	}, []string{"error_class"})

	searchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_search_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class.",
	}, []string{"error_class"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweeper_wait_seconds",
		Help:    "Time spent waiting before the next request, by reason.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900, 3600},
	}, []string{"reason"})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_records_fetched_total",
		Help: "Total number of repository records accepted from search pages.",
	})

	recordsPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_records_persisted_total",
		Help: "Total number of repository records handed to a sink.",
	}, []string{"sink"})

	partitionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_partitions_completed_total",
		Help: "Total number of star range predicates drained.",
	})

	partitionsOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_partitions_overflow_total",
		Help: "Predicates whose reported total exceeded the search result window.",
	})

	lastSweepSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sweeper_last_success_timestamp_seconds",
		Help: "Unix time of the last sweep that finished without error.",
	})
)
