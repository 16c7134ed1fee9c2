package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewflow_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	reviewSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_review_submissions_total",
		Help: "Public review submissions by plan, rating and redirect route",
	}, []string{"plan", "rating", "route"})

	tenantsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_tenants_created_total",
		Help: "Tenants provisioned by plan type",
	}, []string{"plan"})

	invitationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_invitations_total",
		Help: "Invitation events by result (sent, consumed, email_failed, expired)",
	}, []string{"result"})

	invoiceEmails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_invoice_emails_total",
		Help: "Invoice email deliveries by result",
	}, []string{"result"})

	sweepOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewflow_sweep_operations_total",
		Help: "Background sweep runs by worker and result",
	}, []string{"worker", "result"})

	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewflow_websocket_clients",
		Help: "Connected realtime event subscribers",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveReviewSubmission records a stored public review.
func ObserveReviewSubmission(plan string, rating int, google bool) {
	route := "feedback"
	if google {
		route = "google"
	}
	reviewSubmissions.WithLabelValues(plan, strconv.Itoa(rating), route).Inc()
}

// IncTenantsCreated increments the provisioned tenant counter.
func IncTenantsCreated(plan string) {
	tenantsCreated.WithLabelValues(plan).Inc()
}

// IncInvitations increments the invitation event counter.
func IncInvitations(result string) {
	invitationEvents.WithLabelValues(result).Inc()
}

// IncInvoiceSends increments the invoice email counter.
func IncInvoiceSends(result string) {
	invoiceEmails.WithLabelValues(result).Inc()
}

// ObserveSweep increments the background sweep counter.
func ObserveSweep(worker, result string) {
	sweepOperations.WithLabelValues(worker, result).Inc()
}

// WebsocketConnected tracks a new realtime subscriber.
func WebsocketConnected() {
	websocketClients.Inc()
}

// WebsocketDisconnected tracks a closed realtime subscriber.
func WebsocketDisconnected() {
	websocketClients.Dec()
}
