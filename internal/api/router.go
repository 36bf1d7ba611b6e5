package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
)

// NewRouter wires routes, per-route metrics, access logging, and CORS.
func NewRouter(s *Server, m *observability.Metrics, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, m.WrapHandler(path, h)).Methods(methods...)
	}

	route("/api/raw-usage", s.postRawUsage, http.MethodPost)
	route("/api/raw-usage/latest", s.getRawLatest, http.MethodGet)
	route("/api/daily-usage/date/{date}", s.getDailyByDate, http.MethodGet)
	route("/api/daily-usage/week", s.getDailyWeek, http.MethodGet)
	route("/api/weekly-usage/recent", s.getWeeklyRecent, http.MethodGet)
	route("/api/monthly-usage/year", s.getMonthlyYear, http.MethodGet)
	route("/api/monthly-usage/current", s.getMonthlyCurrent, http.MethodGet)
	route("/api/monthly-usage/year-total", s.getYearTotal, http.MethodGet)
	route("/health", s.health, http.MethodGet)
	r.Handle("/metrics", observability.Handler(reg)).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return wrapWithLogging(log, cors(r))
}

// wrapWithLogging records structured access logs with latency, method,
// path, and status code.
func wrapWithLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		logger.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.String("duration", duration.String()),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader stores the status code so the middleware can log it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
