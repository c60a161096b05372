package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/playforge/liveops/pkg/metrics"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// RequestLogger creates middleware that logs every request with its
// outcome and records latency in the request duration histogram.
func RequestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(capture, r)

			duration := time.Since(start)
			if m != nil {
				m.RequestDuration.WithLabelValues(r.Method, strconv.Itoa(capture.statusCode)).
					Observe(duration.Seconds())
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", capture.statusCode,
				"duration", duration,
				"actor", r.Header.Get("X-User-Principal"))
		})
	}
}
