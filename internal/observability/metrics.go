// README: Prometheus metrics for the dispatch engine and HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hail", Name: "assignments_total",
		Help: "Rides successfully assigned to a driver",
	})
	AssignmentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hail", Name: "assignment_attempts_total",
		Help: "Per-candidate assignment attempts, successful or not",
	})
	LockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hail", Name: "lock_contention_total",
		Help: "Candidates skipped because the driver lock was held",
	})
	DispatchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hail", Name: "dispatch_exhausted_total",
		Help: "Assignment passes that ran out of candidates",
	})
	RejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hail", Name: "rejections_total",
		Help: "Driver rejections processed",
	})
	RidesCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hail", Name: "rides_cancelled_total",
		Help: "Rides cancelled, by cause",
	}, []string{"cause"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hail", Name: "http_requests_total",
		Help: "HTTP requests handled",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hail", Name: "http_request_duration_seconds",
		Help:    "HTTP request latency distribution",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
