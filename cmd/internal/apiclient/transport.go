package apiclient

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport logs every round trip as "http.request".
// Authorization headers are never logged.
type LoggingTransport struct {
	Base http.RoundTripper
	Log  *slog.Logger
}

func (t *LoggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	log := t.Log
	if log == nil {
		log = slog.Default()
	}

	start := time.Now()
	resp, err := base.RoundTrip(r)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		log.Warn("http.request.fail",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", elapsed,
			"request_id", r.Header.Get(HeaderRequestID),
			"err", err,
		)
		return nil, err
	}

	level, result := requestLogMeta(resp.StatusCode)
	log.Log(r.Context(), level, "http.request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"status_class", statusClass(resp.StatusCode),
		"result", result,
		"duration_ms", elapsed,
		"request_id", r.Header.Get(HeaderRequestID),
	)
	return resp, nil
}

// requestLogMeta picks the log level and result label for a status code.
// 401 is logged at debug: it is the normal trigger for a token refresh.
func requestLogMeta(status int) (slog.Level, string) {
	switch {
	case status == http.StatusUnauthorized:
		return slog.LevelDebug, "unauthorized"
	case status >= 500:
		return slog.LevelError, "server_error"
	case status >= 400:
		return slog.LevelWarn, "client_error"
	case status >= 300:
		return slog.LevelInfo, "redirect"
	default:
		return slog.LevelInfo, "success"
	}
}
