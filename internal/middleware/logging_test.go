package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		code int
		want slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusFound, slog.LevelInfo},
		{http.StatusNotFound, slog.LevelWarn},
		{http.StatusTooManyRequests, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
	}
	for _, tt := range tests {
		if got := accessLevel(tt.code); got != tt.want {
			t.Errorf("accessLevel(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/vouchers/3/purchase", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	line := buf.String()
	for _, want := range []string{"level=WARN", "method=POST", "path=/api/vouchers/3/purchase", "status=409", "client=10.0.0.9"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestAccessLogDefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if line := buf.String(); !strings.Contains(line, "status=200") || !strings.Contains(line, "level=INFO") {
		t.Errorf("log line = %q, want an info line with status=200", line)
	}
}

func TestResponseStatusUnwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := &responseStatus{ResponseWriter: rr, code: http.StatusOK}
	if rs.Unwrap() != http.ResponseWriter(rr) {
		t.Error("Unwrap did not return the inner writer")
	}
}
