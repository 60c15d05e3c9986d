package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "goldpull",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of price API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goldpull",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by price API endpoint",
		},
		[]string{"endpoint"},
	)

	HistoryCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goldpull",
			Subsystem: "api",
			Name:      "history_cache_total",
			Help:      "History response cache lookups by result",
		},
		[]string{"result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, HistoryCacheHits)
	})
}
