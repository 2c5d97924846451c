package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestLogging_Levels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		wantLevel string
		wantClass string
	}{
		{status: http.StatusOK, wantLevel: "DEBUG", wantClass: "2xx"},
		{status: http.StatusFound, wantLevel: "DEBUG", wantClass: "3xx"},
		{status: http.StatusNotFound, wantLevel: "WARN", wantClass: "4xx"},
		{status: http.StatusServiceUnavailable, wantLevel: "ERROR", wantClass: "5xx"},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("body"))
		}), log)

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("status=%d: decode log: %v (%q)", tc.status, err, buf.String())
		}
		if rec["msg"] != "diag.request" || rec["level"] != tc.wantLevel || rec["status_class"] != tc.wantClass {
			t.Fatalf("status=%d: unexpected record %v", tc.status, rec)
		}
		if rec["bytes"].(float64) != 4 || rec["path"] != "/readyz" {
			t.Fatalf("status=%d: unexpected bytes/path %v", tc.status, rec)
		}
	}
}

func TestLoggingResponseWriter_ImplicitOK(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
		w.WriteHeader(http.StatusTeapot)
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.Contains(buf.String(), "status=200") {
		t.Fatalf("a write before WriteHeader must log 200, got %q", buf.String())
	}
}
