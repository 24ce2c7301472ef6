package metrics

import (
	"strconv"
	"sync"
	"time"

	"hairstudio/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studio"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking operations by result (ok or error code).",
		},
		[]string{"operation", "result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbox task deliveries by type and result.",
		},
		[]string{"type", "result"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published on the bus.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, bookings, notifications, eventsTotal)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(endpoint string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// IncBooking counts a booking operation; result is "ok" or an error code.
func IncBooking(operation, result string) {
	bookings.WithLabelValues(operation, result).Inc()
}

func IncNotification(taskType, result string) {
	notifications.WithLabelValues(taskType, result).Inc()
}

// SubscribeEvents counts every event published on the bus.
func SubscribeEvents(bus *events.EventBus) {
	bus.SubscribeAll(func(event *events.Event) error {
		eventsTotal.WithLabelValues(event.Type).Inc()
		return nil
	})
}
