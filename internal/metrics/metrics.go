// Package metrics exposes monitor counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "ranch_"

	ResultAccepted = "accepted"
	ResultRejected = "rejected"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	packetsTotal  *prometheus.CounterVec
	pollsTotal    *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	alertsTotal   *prometheus.CounterVec
	rendersTotal  prometheus.Counter
	devicesGauge  prometheus.Gauge
	exportsTotal  *prometheus.CounterVec
	fenceStatuses *prometheus.GaugeVec
)

// Init registers the monitor metrics with the default registry. It is safe
// to call more than once.
func Init() {
	registerOnce.Do(func() {
		packetsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_total",
				Help: "Feed records ingested by result",
			},
			[]string{"result"},
		)
		pollsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_polls_total",
				Help: "Feed polls by result",
			},
			[]string{"result"},
		)
		pollLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "feed_poll_seconds",
				Help:    "Feed poll latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "geofence_alerts_total",
				Help: "Geofence transitions by new status",
			},
			[]string{"status"},
		)
		rendersTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "renders_total",
				Help: "Debounced render cycles",
			},
		)
		devicesGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices",
				Help: "Devices currently tracked",
			},
		)
		exportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "History exports by format",
			},
			[]string{"format"},
		)
		fenceStatuses = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fence_devices",
				Help: "Devices per geofence status at the last render",
			},
			[]string{"status"},
		)

		prometheus.MustRegister(
			packetsTotal,
			pollsTotal,
			pollLatency,
			alertsTotal,
			rendersTotal,
			devicesGauge,
			exportsTotal,
			fenceStatuses,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncPacket counts one ingested feed record.
func IncPacket(accepted bool) {
	if packetsTotal == nil {
		return
	}
	result := ResultAccepted
	if !accepted {
		result = ResultRejected
	}
	packetsTotal.WithLabelValues(result).Inc()
}

// ObservePoll records one feed poll.
func ObservePoll(result string, duration time.Duration) {
	if pollsTotal != nil {
		pollsTotal.WithLabelValues(result).Inc()
	}
	if pollLatency != nil {
		pollLatency.Observe(duration.Seconds())
	}
}

// IncAlert counts one geofence transition.
func IncAlert(status string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRender records a render cycle and the state it saw.
func ObserveRender(devices int, byStatus map[string]int) {
	if rendersTotal != nil {
		rendersTotal.Inc()
	}
	if devicesGauge != nil {
		devicesGauge.Set(float64(devices))
	}
	if fenceStatuses != nil {
		fenceStatuses.Reset()
		for status, n := range byStatus {
			fenceStatuses.WithLabelValues(status).Set(float64(n))
		}
	}
}

// IncExport counts one history export.
func IncExport(format string) {
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format).Inc()
	}
}
