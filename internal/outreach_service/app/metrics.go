package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	contactsHarvestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "contacts_harvested_total",
			Help:      "Total number of contacts harvested, by strategy.",
		},
		[]string{"strategy"}, // network | scroll
	)
	harvestScrollIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "harvest_scroll_iterations",
			Help:      "Scroll iterations needed per scroll-replay harvest.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	harvestCompleteness = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "harvest_completeness_ratio",
			Help:      "Harvested count over the console's expected total.",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 11),
		},
	)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by content type and outcome.",
		},
		[]string{"content_type", "status"}, // status: success | failed | skipped
	)
	dispatchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall-clock duration of dispatch runs.",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 12),
		},
	)
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "tasks_total",
			Help:      "Outreach task terminations by outcome.",
		},
		[]string{"outcome"}, // completed | paused | stopped | failed
	)
)
