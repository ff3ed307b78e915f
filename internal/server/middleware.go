package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mailfold/mailfold/internal/logging"
)

// statusRecorder captures the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withObservability logs every request and records it in the HTTP
// metrics. Path labels use the route pattern, not the raw URL, so
// per-user path segments do not blow up metric cardinality.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		pattern := r.Pattern
		if pattern == "" {
			pattern = r.URL.Path
		}

		s.logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("path", pattern),
			logging.Status(http.StatusText(rec.status)),
			slog.Int("status_code", rec.status),
			slog.Duration("duration", duration))

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Context(), r.Method, pattern, rec.status, duration)
		}
	})
}
