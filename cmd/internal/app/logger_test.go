package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log := newLogger(&buf, "warn", LogFormatJSON)
	log.Info("hidden")
	log.Warn("auth.refresh.fail", "err", "boom")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "auth.refresh.fail" || rec["err"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}

	buf.Reset()
	log = newLogger(&buf, "info", LogFormatPretty)
	log.Info("notify.connect.ok")
	if !strings.Contains(buf.String(), "[INFO] notify.connect.ok") {
		t.Fatalf("unexpected pretty output: %q", buf.String())
	}
	if slog.Default() != log {
		t.Fatalf("NewLogger must install the default logger")
	}
}
