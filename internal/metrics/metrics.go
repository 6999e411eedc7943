package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workload",
			Name:      "http_requests_total",
			Help:      "Count of gateway requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workload",
			Name:      "date_validation_failures_total",
			Help:      "Count of rejected date edits by field and kind.",
		},
		[]string{"field", "kind"},
	)

	saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workload",
			Name:      "saves_total",
			Help:      "Count of save attempts by form and status.",
		},
		[]string{"form", "status"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workload",
			Name:      "notifications_sent_total",
			Help:      "Count of Telegram notifications by status.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, validationFailures, saves, notificationsSent)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncValidationFailure(field, kind string) {
	validationFailures.WithLabelValues(field, kind).Inc()
}

func IncSave(form, status string) {
	saves.WithLabelValues(form, status).Inc()
}

func IncNotification(status string) {
	notificationsSent.WithLabelValues(status).Inc()
}
