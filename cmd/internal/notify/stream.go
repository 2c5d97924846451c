package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"teamdash/cmd/internal/ids"
	"teamdash/cmd/internal/tokenstore"
	v1 "teamdash/contracts/notifications/v1"

	"github.com/coder/websocket"
)

// State is the connection state of a Stream.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Event is one received notification.
type Event struct {
	ID         string
	Event      string
	Payload    v1.Message
	ReceivedAt time.Time
}

// Stream owns the notification socket and the feed.
//
// Subscriber callbacks run on the stream's goroutines and must not call
// SetActive or Close.
type Stream struct {
	baseURL string
	tokens  tokenstore.Store
	log     *slog.Logger
	metrics *Metrics

	heartbeat   time.Duration
	pingFormat  PingFormat
	feedSize    int
	dialTimeout time.Duration
	httpClient  *http.Client

	// toggle serializes SetActive and Close.
	toggle sync.Mutex
	closed bool

	// notifyMu orders state changes and their callbacks.
	notifyMu sync.Mutex

	mu        sync.Mutex
	active    bool
	state     State
	conn      *connection
	feed      []Event
	feedSubs  map[int]func([]Event)
	stateSubs map[int]func(State)
	nextSub   int
}

// New returns an idle Stream for the API at baseURL. The access token is
// read from tokens each time the stream is activated.
func New(baseURL string, tokens tokenstore.Store, opts ...Option) *Stream {
	s := &Stream{
		baseURL:     baseURL,
		tokens:      tokens,
		log:         slog.Default(),
		heartbeat:   DefaultHeartbeat,
		pingFormat:  PingJSON,
		feedSize:    DefaultFeedSize,
		dialTimeout: DefaultDialTimeout,
		feedSubs:    make(map[int]func([]Event)),
		stateSubs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetActive opens the socket on an inactive-to-active transition when an
// access token is stored, and tears it down on any transition to inactive.
// Activating an active stream is a no-op. Without a stored token the
// stream stays inactive.
func (s *Stream) SetActive(ctx context.Context, active bool) error {
	s.toggle.Lock()
	defer s.toggle.Unlock()

	if s.closed {
		if !active {
			return nil
		}
		return ErrClosed
	}
	if !active {
		s.deactivate()
		return nil
	}

	s.mu.Lock()
	already := s.active
	s.mu.Unlock()
	if already {
		return nil
	}

	pair, err := s.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if pair.Access == "" {
		s.log.Debug("notify.connect.skip", "reason", "no_token")
		return nil
	}

	c := newConnection()
	s.mu.Lock()
	s.active = true
	s.conn = c
	s.mu.Unlock()
	s.setState(c, StateConnecting)

	go s.run(c, URL(s.baseURL, pair.Access))
	return nil
}

// Close deactivates the stream for good. Later SetActive(true) calls fail
// with ErrClosed. Close is idempotent.
func (s *Stream) Close() {
	s.toggle.Lock()
	defer s.toggle.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.deactivate()
}

// deactivate must run with s.toggle held. It returns after the socket is
// closed and the heartbeat has stopped.
func (s *Stream) deactivate() {
	s.mu.Lock()
	c := s.conn
	s.active = false
	s.conn = nil
	s.mu.Unlock()

	if c != nil {
		c.teardown(websocket.StatusNormalClosure, "client inactive")
		<-c.done
	}
	s.setState(nil, StateIdle)
}

// Active reports whether the stream is activated.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns the connection state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the feed, newest first.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.feed...)
}

// Dismiss removes the event with id. It reports whether one was removed.
func (s *Stream) Dismiss(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, ev := range s.feed {
		if ev.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.feed = append(s.feed[:idx:idx], s.feed[idx+1:]...)
	snap, subs := s.feedSnapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

// Clear empties the feed.
func (s *Stream) Clear() {
	s.mu.Lock()
	s.feed = nil
	snap, subs := s.feedSnapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Subscribe registers fn to receive the feed after every change.
func (s *Stream) Subscribe(fn func([]Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.feedSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.feedSubs, id)
		s.mu.Unlock()
	}
}

// OnStateChange registers fn to receive connection state transitions.
func (s *Stream) OnStateChange(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.stateSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.stateSubs, id)
		s.mu.Unlock()
	}
}

func (s *Stream) run(c *connection, target string) {
	defer close(c.done)

	dctx, cancel := context.WithTimeout(c.ctx, s.dialTimeout)
	ws, _, err := websocket.Dial(dctx, target, &websocket.DialOptions{HTTPClient: s.httpClient})
	cancel()
	s.metrics.observeConnect(err)
	if err != nil {
		s.log.Warn("notify.connect.fail", "err", err)
		c.teardown(websocket.StatusAbnormalClosure, "dial failed")
		s.setState(c, StateIdle)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	if !c.attach(ws) {
		_ = ws.Close(websocket.StatusNormalClosure, "client inactive")
		return
	}
	s.log.Info("notify.connect.ok")
	s.setState(c, StateConnected)

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		s.keepalive(c, ws)
	}()

	for {
		typ, data, err := ws.Read(c.ctx)
		if err != nil {
			kind := classifyReadErr(err)
			if kind == readErrCtxDone {
				s.log.Debug("notify.read.stop", "reason", kind.String())
			} else {
				s.log.Info("notify.read.end", "reason", kind.String(), "close_status", websocket.CloseStatus(err), "err", err)
			}
			break
		}
		if typ != websocket.MessageText {
			s.drop(c, "binary frame", nil)
			continue
		}
		s.deliver(c, data)
	}

	c.teardown(websocket.StatusNormalClosure, "bye")
	<-hbDone
	s.setState(c, StateIdle)
	s.log.Info("notify.disconnect")
}

func (s *Stream) keepalive(c *connection, ws *websocket.Conn) {
	frame := s.pingFrame()

	t := time.NewTicker(s.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if s.State() != StateConnected || c.socket() == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(c.ctx, DefaultWriteTimeout)
			err := ws.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					s.log.Info("notify.ping.fail", "err", err)
				}
				c.teardown(websocket.StatusAbnormalClosure, "heartbeat failed")
				return
			}
		}
	}
}

func (s *Stream) pingFrame() []byte {
	if s.pingFormat == PingText {
		return []byte(v1.PingText)
	}
	b, _ := json.Marshal(v1.Ping{Type: v1.PingType})
	return b
}

// deliver decodes data and prepends it to the feed unless c has been
// replaced or torn down in the meantime.
func (s *Stream) deliver(c *connection, data []byte) {
	msg, err := v1.Decode(data)
	if err != nil {
		s.drop(c, "malformed payload", err)
		return
	}

	now := time.Now()
	ev := Event{
		ID:         ids.MustULID(now),
		Event:      msg.EventName(),
		Payload:    msg,
		ReceivedAt: now,
	}

	s.mu.Lock()
	if s.conn != c || c.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.feed = append([]Event{ev}, s.feed...)
	if len(s.feed) > s.feedSize {
		s.feed = s.feed[:s.feedSize]
	}
	snap, subs := s.feedSnapshotLocked()
	s.mu.Unlock()

	s.metrics.observeEvent(ev.Event)
	s.log.Debug("notify.event", "event", ev.Event, "id", ev.ID)
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Stream) drop(c *connection, reason string, err error) {
	s.mu.Lock()
	stale := s.conn != c
	s.mu.Unlock()
	if stale {
		return
	}
	s.metrics.observeDrop()
	s.log.Warn("notify.message.drop", "reason", reason, "err", err)
}

// setState applies st if c is still the current connection. A nil c
// applies unconditionally. Subscribers see transitions in the order they
// were applied.
func (s *Stream) setState(c *connection, st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if c != nil && s.conn != c {
		s.mu.Unlock()
		return
	}
	if st == StateIdle && c != nil {
		s.conn = nil
	}
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	subs := make([]func(State), 0, len(s.stateSubs))
	for _, fn := range s.stateSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (s *Stream) feedSnapshotLocked() ([]Event, []func([]Event)) {
	snap := append([]Event(nil), s.feed...)
	subs := make([]func([]Event), 0, len(s.feedSubs))
	for _, fn := range s.feedSubs {
		subs = append(subs, fn)
	}
	return snap, subs
}
