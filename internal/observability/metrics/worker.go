package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	scanTotal       *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	scanInFlight    prometheus.Gauge
	pollAttempts    *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
	matchTotal      *prometheus.CounterVec
	reminderOpTotal *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	scanTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "scan_total",
			Help:      "Total processed scans by final state.",
		},
		[]string{"service", "state"},
	)
	scanDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "scan_duration_seconds",
			Help:      "Scan pipeline duration in seconds by final state.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 120, 300},
		},
		[]string{"service", "state"},
	)
	scanInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "scan_in_flight",
			Help:      "Number of in-flight scan pipelines.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "poll_attempts",
			Help:      "Poll attempts used per scan.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service", "state"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between scan upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	matchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "lines_total",
			Help:      "Receipt lines by catalog match outcome.",
		},
		[]string{"service", "outcome"},
	)
	reminderOpTotal := newReminderOpsCounter()
	dispatchedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Due reminders published for delivery.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		scanTotal,
		scanDuration,
		scanInFlight,
		pollAttempts,
		queueLag,
		matchTotal,
		reminderOpTotal,
		dispatchedTotal,
	)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		scanTotal:       scanTotal,
		scanDuration:    scanDuration,
		scanInFlight:    scanInFlight,
		pollAttempts:    pollAttempts,
		queueLag:        queueLag,
		matchTotal:      matchTotal,
		reminderOpTotal: reminderOpTotal,
		dispatchedTotal: dispatchedTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartScan() {
	m.scanInFlight.Inc()
}

func (m *WorkerMetrics) FinishScan() {
	m.scanInFlight.Dec()
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveScan(state domain.ScanState, attempts int, duration time.Duration) {
	label := string(state)
	if label == "" {
		label = "unknown"
	}
	m.scanTotal.WithLabelValues(m.service, label).Inc()
	m.scanDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
	if attempts > 0 {
		m.pollAttempts.WithLabelValues(m.service, label).Observe(float64(attempts))
	}
}

func (m *WorkerMetrics) ObserveMatch(matched bool) {
	outcome := "fallback"
	if matched {
		outcome = "matched"
	}
	m.matchTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *WorkerMetrics) ObserveReminder(op string, err error) {
	observeReminder(m.reminderOpTotal, m.service, op, err)
}

func (m *WorkerMetrics) ObserveDispatch(err error) {
	m.dispatchedTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}
