package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers queries served over the message queue.
type WorkerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total queue requests handled by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Queue request handling duration in seconds by mode and status.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		},
		[]string{"service", "mode", "status"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_in_flight",
			Help:      "Number of queue requests being answered.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight)

	return &WorkerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRequest() {
	m.requestInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(service, mode string, duration time.Duration, err error) {
	m.requestInFlight.Dec()

	status := statusOf(err)
	m.requestTotal.WithLabelValues(service, mode, status).Inc()
	m.requestDuration.WithLabelValues(service, mode, status).Observe(duration.Seconds())
}
