package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inflow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inflow_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	workflowRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inflow_workflow_runs_total",
		Help: "Count of workflow runs by outcome",
	}, []string{"status", "simulated"})

	creditsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inflow_credits_consumed_total",
		Help: "Total AI credits consumed by workflow runs",
	})

	commissionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inflow_commissions_created_total",
		Help: "Count of commission log entries created by type",
	}, []string{"type"})

	payoutsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inflow_payouts_requested_total",
		Help: "Count of partner payout requests",
	})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inflow_active_subscriptions",
		Help: "Number of customers with an active subscription",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveWorkflowRun records a workflow run outcome.
func ObserveWorkflowRun(status string, simulated bool, credits int) {
	workflowRunsTotal.WithLabelValues(status, strconv.FormatBool(simulated)).Inc()
	if credits > 0 {
		creditsConsumedTotal.Add(float64(credits))
	}
}

// ObserveCommission increments the commission counter for the given type.
func ObserveCommission(commissionType string) {
	commissionsCreatedTotal.WithLabelValues(commissionType).Inc()
}

// ObservePayoutRequest increments the payout request counter.
func ObservePayoutRequest() {
	payoutsRequestedTotal.Inc()
}

// SetActiveSubscriptions sets the active subscription gauge.
func SetActiveSubscriptions(count int) {
	if count < 0 {
		count = 0
	}
	activeSubscriptions.Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler and records request count and duration.
// The route pattern from the mux is used as the path label so that
// IDs in the URL do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		ObserveHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	})
}
