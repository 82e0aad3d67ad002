package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	cartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation.",
		},
		[]string{"op"},
	)

	previewRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "preview_requests_total",
			Help:      "Pricing preview requests by result.",
		},
		[]string{"result"},
	)

	previewDiscards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "preview_discards_total",
			Help:      "Preview responses discarded because the cart changed while in flight.",
		},
	)

	availabilityFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "availability_fetches_total",
			Help:      "Room availability lookups by outcome (fetched, coalesced, cached).",
		},
		[]string{"outcome"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostelcart",
			Name:      "order_submissions_total",
			Help:      "Order submissions by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			cartMutations,
			previewRequests,
			previewDiscards,
			availabilityFetches,
			submissions,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncCartMutation increments the cart mutation counter for an operation.
func IncCartMutation(op string) {
	cartMutations.WithLabelValues(op).Inc()
}

// IncPreview increments the preview request counter for a result label.
func IncPreview(result string) {
	previewRequests.WithLabelValues(result).Inc()
}

// IncPreviewDiscard counts a stale preview response thrown away.
func IncPreviewDiscard() {
	previewDiscards.Inc()
}

// IncAvailability increments the availability lookup counter for an outcome.
func IncAvailability(outcome string) {
	availabilityFetches.WithLabelValues(outcome).Inc()
}

// IncSubmission increments the order submission counter for a result label.
func IncSubmission(result string) {
	submissions.WithLabelValues(result).Inc()
}
