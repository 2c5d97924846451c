package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHeartbeat    = 25 * time.Second
	DefaultFeedSize     = 6
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	// Max bytes per inbound frame.
	maxFrameBytes = 64 << 10
)

// PingFormat selects the keepalive frame.
type PingFormat string

const (
	// PingJSON sends {"type":"ping"}.
	PingJSON PingFormat = "json"
	// PingText sends the bare text "ping".
	PingText PingFormat = "text"
)

// ParsePingFormat accepts "json" or "text" (case-insensitive). Empty means json.
func ParsePingFormat(s string) (PingFormat, error) {
	switch PingFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", PingJSON:
		return PingJSON, nil
	case PingText:
		return PingText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrPingFormat, s)
	}
}

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Stream) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records connection and event counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// WithHeartbeat sets the keepalive interval. Non-positive values are ignored.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithPingFormat selects the keepalive frame.
func WithPingFormat(f PingFormat) Option {
	return func(s *Stream) {
		if f == PingText {
			s.pingFormat = PingText
		} else {
			s.pingFormat = PingJSON
		}
	}
}

// WithFeedSize caps the feed. Non-positive values are ignored.
func WithFeedSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.feedSize = n
		}
	}
}

// WithDialTimeout bounds the WebSocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithHTTPClient sets the client used for the handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Stream) { s.httpClient = hc }
}
