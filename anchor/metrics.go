package anchor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_ingested_total",
		Help: "Count of telemetry submissions accepted into the pending queue.",
	})
	assembleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anchor_batch_assembly_seconds",
		Help:    "Time spent snapshotting, building and persisting one batch.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	batchLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anchor_batch_leaves",
		Help:    "Leaf count of assembled batches.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500, 1000},
	})
	treeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_tree_cache_hits_total",
		Help: "Count of proof requests served from the resident tree cache.",
	})
	treeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_tree_cache_misses_total",
		Help: "Count of proof requests that rebuilt the batch tree from the store.",
	})
)
