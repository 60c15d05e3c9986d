package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	tickQuotes  prometheus.Gauge
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	clients     prometheus.Gauge
	alarmsFired *prometheus.CounterVec
}

// New registers the collectors on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpull_ticks_total",
			Help: "Price ticks applied to the snapshot",
		}, []string{"source"}),
		tickQuotes: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldpull_snapshot_quotes",
			Help: "Quotes in the latest snapshot",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpull_errors_total",
			Help: "Errors by kind",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldpull_last_price",
			Help: "Last calculated sell price per instrument",
		}, []string{"code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goldpull_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldpull_realtime_clients",
			Help: "Connected realtime clients",
		}),
		alarmsFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpull_alarms_fired_total",
			Help: "Alarms triggered per instrument",
		}, []string{"code"}),
	}
}

func (r *Recorder) RecordTick(source string, quotes int) {
	r.ticks.WithLabelValues(source).Inc()
	r.tickQuotes.Set(float64(quotes))
}

func (r *Recorder) RecordError(kind string) { r.errorsTotal.WithLabelValues(kind).Inc() }

func (r *Recorder) RecordLastPrice(code string, price float64) {
	r.lastPrice.WithLabelValues(code).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordClients(n int) { r.clients.Set(float64(n)) }

func (r *Recorder) RecordAlarmFired(code string) { r.alarmsFired.WithLabelValues(code).Inc() }

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordTick(string, int)          {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
func (Nop) RecordClients(int)               {}
func (Nop) RecordAlarmFired(string)         {}
