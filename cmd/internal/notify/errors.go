package notify

import "errors"

var (
	// ErrClosed is returned by SetActive after Close.
	ErrClosed = errors.New("notify: stream closed")

	// ErrPingFormat is returned for an unknown keepalive format.
	ErrPingFormat = errors.New("notify: unknown ping format")
)
