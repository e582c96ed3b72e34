package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_requests_total",
		Help: "Total requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilefetch_request_duration_seconds",
		Help:    "Request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	requestsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilefetch_requests_inflight",
		Help: "Requests issued and not yet complete",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})

	abortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_aborts_total",
		Help: "Total in-flight requests aborted",
	})
)
