package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "receipts"

func newReminderOpsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "operations_total",
			Help:      "Reminder store operations per item by outcome.",
		},
		[]string{"service", "op", "status"},
	)
}

func observeReminder(counter *prometheus.CounterVec, service, op string, err error) {
	if op == "" {
		op = "unknown"
	}
	counter.WithLabelValues(service, op, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
