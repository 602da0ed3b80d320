package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "confidential_ledger",
		Subsystem: "watcher",
		Name:      "blocks_processed_total",
		Help:      "Total number of chain blocks processed.",
	})
	eventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "confidential_ledger",
		Subsystem: "watcher",
		Name:      "events_applied_total",
		Help:      "Total number of chain events applied, by kind.",
	}, []string{"kind"})
	eventsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "confidential_ledger",
		Subsystem: "watcher",
		Name:      "events_skipped_total",
		Help:      "Total number of chain events skipped, by reason.",
	}, []string{"reason"})
	blockProcessingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "confidential_ledger",
		Subsystem: "watcher",
		Name:      "block_processing_seconds",
		Help:      "Time spent processing one block.",
		Buckets:   prometheus.DefBuckets,
	})
	lastProcessedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "confidential_ledger",
		Subsystem: "watcher",
		Name:      "last_processed_height",
		Help:      "Height of the last fully processed block.",
	})
)
