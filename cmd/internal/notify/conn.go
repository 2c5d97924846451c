package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/coder/websocket"
)

// connection is one socket plus the goroutines serving it. teardown is
// idempotent; done closes once the read loop and heartbeat have exited.
type connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	ws       *websocket.Conn
	torn     bool
	tearOnce sync.Once
}

func newConnection() *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// attach records the dialed socket. It reports false if teardown already
// ran, in which case the caller must close ws itself.
func (c *connection) attach(ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return false
	}
	c.ws = ws
	return true
}

func (c *connection) socket() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *connection) teardown(code websocket.StatusCode, reason string) {
	c.tearOnce.Do(func() {
		c.mu.Lock()
		c.torn = true
		ws := c.ws
		c.mu.Unlock()

		if ws != nil {
			_ = ws.Close(code, reason)
		}
		c.cancel()
	})
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func (k readErrKind) String() string {
	switch k {
	case readErrClose:
		return "peer_closed"
	case readErrCtxDone:
		return "context_done"
	case readErrConnClosed:
		return "conn_closed"
	default:
		return "unknown"
	}
}

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
