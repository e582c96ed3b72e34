package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_batches_total",
		Help: "Total batches by outcome",
	}, []string{"outcome"}) // "complete", "cancelled"

	batchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_batch_requests_total",
		Help: "Total batch requests by outcome",
	}, []string{"outcome"}) // "ok", "error", "aborted"

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilefetch_batch_duration_seconds",
		Help:    "Batch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilefetch_batch_size",
		Help:    "Number of requests per batch",
		Buckets: []float64{1, 4, 16, 64, 256, 1024},
	})
)
