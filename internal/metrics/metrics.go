package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	Reservations   *prometheus.CounterVec
	OrdersCreated  prometheus.Counter
	BuildFailures  *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	WebhookEvents  *prometheus.CounterVec
	CheckoutErrors prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
}

// New builds the collectors and registers them on reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inventory", Name: "reservations_total",
			Help: "Stock reservations and releases by result.",
		}, []string{"result"}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "created_total",
			Help: "Orders persisted in PENDING status.",
		}),
		BuildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "build_failures_total",
			Help: "Order builds aborted, by error kind.",
		}, []string{"kind"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "orders", Name: "build_duration_seconds",
			Help:    "Latency of order creation including stock reservation.",
			Buckets: prometheus.DefBuckets,
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fulfillment", Name: "webhook_events_total",
			Help: "Payment webhook events by outcome.",
		}, []string{"outcome"}),
		CheckoutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkout", Name: "session_errors_total",
			Help: "Checkout session requests the payment provider failed.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "code"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.Reservations, m.OrdersCreated, m.BuildFailures, m.BuildDuration,
		m.WebhookEvents, m.CheckoutErrors, m.HTTPRequests, m.HTTPLatency,
	)
	return m
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific gatherer, typically the registry passed to New.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
