package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_http_requests_total",
		Help: "HTTP requests served, by method, route pattern and status code.",
	}, []string{"method", "pattern", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiond_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern"})

	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_sessions_issued_total",
		Help: "Refresh sessions created (login, register, rotation).",
	})

	SessionsRotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_sessions_rotated_total",
		Help: "Successful refresh rotations.",
	})

	SessionsRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_sessions_revoked_total",
		Help: "Sessions revoked, by reason.",
	}, []string{"reason"})

	ReuseDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_refresh_reuse_detected_total",
		Help: "Dead refresh tokens presented again, triggering full revocation.",
	})
)
