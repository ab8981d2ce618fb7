package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_storage_operations_total",
			Help: "Number of collection operations by result",
		},
		[]string{"collection", "op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradedesk_storage_operation_duration_seconds",
			Help:    "Duration of collection operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "op"},
	)
)

// Observe records one operation. Exported so every Collection implementation
// reports the same series.
func Observe(collection, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	operationsTotal.WithLabelValues(collection, op, result).Inc()
	operationDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}
