// Package metrics provides Prometheus metrics for the template store and its
// Bitbucket transport.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Remote repository and store metrics
var (
	// remoteRequestsTotal records calls made against the Bitbucket API.
	// Labels:
	//   - op: read, commit, create_branch, create_pull_request, list_commits
	//   - status: ok, not_found, auth_failure, conflict, host_error
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbucket_requests_total",
			Help: "Total number of Bitbucket API requests",
		},
		[]string{"op", "status"},
	)

	// remoteRequestDuration records Bitbucket API latency.
	// Buckets: 50ms .. 30s, the client timeout ceiling.
	remoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitbucket_request_duration_seconds",
			Help:    "Duration of Bitbucket API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	// templateOperationsTotal records store operations.
	// Labels:
	//   - op: list, get, create, update, delete, structure, history
	//   - result: ok, validation_error, not_found, conflict, error
	templateOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_operations_total",
			Help: "Total number of template store operations",
		},
		[]string{"op", "result"},
	)

	// degradedReadsTotal counts list items returned without content because
	// their content file could not be fetched.
	degradedReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "template_degraded_reads_total",
			Help: "Total number of list items returned with empty content after a failed content fetch",
		},
	)

	// approvalRequestsTotal records approval workflow transitions.
	// Labels:
	//   - status: pending, merged, abandoned, failed
	approvalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_approval_requests_total",
			Help: "Total number of deletion approval requests by lifecycle status",
		},
		[]string{"status"},
	)

	// webhookEventsTotal records inbound webhook deliveries.
	// Labels:
	//   - event: the X-Event-Key header value
	//   - outcome: merged, abandoned, ignored, error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook events received",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(remoteRequestsTotal)
	prometheus.MustRegister(remoteRequestDuration)
	prometheus.MustRegister(templateOperationsTotal)
	prometheus.MustRegister(degradedReadsTotal)
	prometheus.MustRegister(approvalRequestsTotal)
	prometheus.MustRegister(webhookEventsTotal)
}

// RecordRemoteRequest records one Bitbucket API call and its outcome.
func RecordRemoteRequest(op, status string) {
	remoteRequestsTotal.WithLabelValues(op, status).Inc()
}

// RecordRemoteDuration records the latency of one Bitbucket API call.
func RecordRemoteDuration(op string, durationSeconds float64) {
	remoteRequestDuration.WithLabelValues(op).Observe(durationSeconds)
}

// RecordTemplateOperation records a store operation result.
func RecordTemplateOperation(op, result string) {
	templateOperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordDegradedRead records a list item served without its content.
func RecordDegradedRead() {
	degradedReadsTotal.Inc()
}

// RecordApproval records an approval workflow transition.
func RecordApproval(status string) {
	approvalRequestsTotal.WithLabelValues(status).Inc()
}

// RecordWebhookEvent records an inbound webhook and what it resolved to.
func RecordWebhookEvent(event, outcome string) {
	webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}
