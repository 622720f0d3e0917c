package middleware

import (
	"net/http"
	"strconv"
	"time"

	"sessiond/internal/metrics"
)

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// MetricsMiddleware records request count and duration per route.
// Unmatched requests share one label so bots can't blow up cardinality.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			mw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(mw, r)

			pattern := r.URL.Path
			if mw.status == http.StatusNotFound {
				pattern = "unmatched"
			}
			status := strconv.Itoa(mw.status)

			metrics.RequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			metrics.RequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
