package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/coinvault/internal/metrics"
)

// responseStatus remembers the first status a handler sends.
type responseStatus struct {
	http.ResponseWriter
	code    int
	written bool
}

func (w *responseStatus) WriteHeader(code int) {
	if !w.written {
		w.code = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseStatus) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the inner writer to http.ResponseController; websocket
// upgrades hijack through it.
func (w *responseStatus) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// accessLevel maps a response code onto the level its access line uses.
func accessLevel(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// AccessLog writes one line per request and bumps the request counter.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rs := &responseStatus{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rs, r)

			metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rs.code)).Inc()
			logger.LogAttrs(r.Context(), accessLevel(rs.code), "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rs.code),
				slog.Duration("elapsed", time.Since(began)),
				slog.String("client", RealIP(r)),
			)
		})
	}
}
