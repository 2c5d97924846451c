package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"teamdash/cmd/internal/apitest"
	"teamdash/cmd/internal/tokenstore"
	v1 "teamdash/contracts/notifications/v1"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const wait = 3 * time.Second

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// signedInStream returns a stream whose store holds a valid session for a new user.
func signedInStream(t *testing.T, srv *apitest.Server, opts ...Option) (*Stream, int64) {
	t.Helper()

	uid := srv.AddUser(fmt.Sprintf("user%d@example.com", time.Now().UnixNano()), "long-password", true)
	store := tokenstore.NewMemoryStore()
	access, refresh := srv.Issue(uid)
	if err := store.Save(context.Background(), tokenstore.Pair{Access: access, Refresh: refresh}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s := New(srv.BaseURL(), store, opts...)
	t.Cleanup(s.Close)
	return s, uid
}

func connect(t *testing.T, srv *apitest.Server, s *Stream, uid int64) {
	t.Helper()
	if err := s.SetActive(context.Background(), true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	apitest.Eventually(t, wait, func() bool {
		return s.State() == StateConnected && srv.Connections(uid) == 1
	}, "stream connected")
}

func TestStream_ReceivesNewestFirst(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	reg := prometheus.NewRegistry()
	s, uid := signedInStream(t, srv, WithMetrics(NewMetrics(reg)))

	var updates atomic.Int32
	defer s.Subscribe(func([]Event) { updates.Add(1) })()

	connect(t, srv, s, uid)

	for i := 1; i <= 8; i++ {
		if err := srv.Push(uid, map[string]any{"event": v1.EventTeamInvitation, "n": i}); err != nil {
			t.Fatalf("Push: %v", err)
		}
		n := i
		apitest.Eventually(t, wait, func() bool { return int(updates.Load()) == n }, "event delivered")
	}

	evs := s.Events()
	if len(evs) != DefaultFeedSize {
		t.Fatalf("feed size=%d want=%d", len(evs), DefaultFeedSize)
	}
	for i, ev := range evs {
		want := float64(8 - i)
		if ev.Payload["n"] != want || ev.Event != v1.EventTeamInvitation || len(ev.ID) != 26 {
			t.Fatalf("evs[%d]=%+v want n=%v", i, ev, want)
		}
		if i > 0 && ev.ID >= evs[i-1].ID {
			t.Fatalf("newer events must have larger ids")
		}
	}

	if got := testutil.ToFloat64(s.metrics.events.WithLabelValues(v1.EventTeamInvitation)); got != 8 {
		t.Fatalf("events metric=%v", got)
	}
	if got := testutil.ToFloat64(s.metrics.connections.WithLabelValues("ok")); got != 1 {
		t.Fatalf("connections metric=%v", got)
	}
}

func TestStream_DropsMalformedAndDefaultsEvent(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	m := NewMetrics(prometheus.NewRegistry())
	s, uid := signedInStream(t, srv, WithMetrics(m))
	connect(t, srv, s, uid)

	for _, raw := range []string{"not json", "[1,2,3]", "null", `"str"`} {
		if err := srv.PushRaw(uid, raw); err != nil {
			t.Fatalf("PushRaw: %v", err)
		}
	}
	if err := srv.PushRaw(uid, `{"message":"hi","event":""}`); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}

	apitest.Eventually(t, wait, func() bool { return len(s.Events()) == 1 }, "valid event delivered")
	if ev := s.Events()[0]; ev.Event != v1.DefaultEvent || ev.Payload["message"] != "hi" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if got := testutil.ToFloat64(m.dropped); got != 4 {
		t.Fatalf("dropped=%v want 4", got)
	}
	if s.State() != StateConnected {
		t.Fatalf("malformed payloads must not close the socket")
	}
}

func TestStream_Heartbeat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format PingFormat
		frame  string
	}{
		{format: PingJSON, frame: `{"type":"ping"}`},
		{format: PingText, frame: "ping"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.format), func(t *testing.T) {
			t.Parallel()

			srv := apitest.New(t)
			s, uid := signedInStream(t, srv, WithHeartbeat(20*time.Millisecond), WithPingFormat(tc.format))
			connect(t, srv, s, uid)

			apitest.Eventually(t, wait, func() bool { return srv.Pings() >= 2 }, "pings sent")
			if got := srv.LastFrame(); got != tc.frame {
				t.Fatalf("ping frame=%q want=%q", got, tc.frame)
			}

			if err := s.SetActive(context.Background(), false); err != nil {
				t.Fatalf("SetActive(false): %v", err)
			}
			apitest.Eventually(t, wait, func() bool { return srv.Connections(uid) == 0 }, "socket closed")

			before := srv.Pings()
			time.Sleep(100 * time.Millisecond)
			if after := srv.Pings(); after != before {
				t.Fatalf("heartbeat kept running after teardown: %d -> %d", before, after)
			}
		})
	}
}

func TestStream_ActivationIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s, uid := signedInStream(t, srv)
	connect(t, srv, s, uid)

	if err := s.SetActive(context.Background(), true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := srv.Connections(uid); n != 1 {
		t.Fatalf("connections=%d want 1", n)
	}

	if err := s.SetActive(context.Background(), false); err != nil {
		t.Fatalf("SetActive(false): %v", err)
	}
	if s.State() != StateIdle || s.Active() {
		t.Fatalf("expected idle inactive stream, got %s active=%v", s.State(), s.Active())
	}
	if err := s.SetActive(context.Background(), false); err != nil {
		t.Fatalf("second SetActive(false): %v", err)
	}
}

func TestStream_NoReconnectAfterServerClose(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s, uid := signedInStream(t, srv)

	var states []State
	stateCh := make(chan State, 16)
	defer s.OnStateChange(func(st State) { stateCh <- st })()

	connect(t, srv, s, uid)
	srv.Disconnect(uid)

	apitest.Eventually(t, wait, func() bool { return s.State() == StateIdle }, "stream idle after server close")
	time.Sleep(100 * time.Millisecond)
	if n := srv.Connections(uid); n != 0 {
		t.Fatalf("stream reconnected on its own: %d", n)
	}

	// Still active: a plain activate is a no-op until the stream is re-toggled.
	_ = s.SetActive(context.Background(), true)
	time.Sleep(50 * time.Millisecond)
	if n := srv.Connections(uid); n != 0 {
		t.Fatalf("activate without toggle reconnected: %d", n)
	}

	_ = s.SetActive(context.Background(), false)
	connect(t, srv, s, uid)

	want := []State{StateConnecting, StateConnected, StateIdle, StateConnecting, StateConnected}
	for range want {
		select {
		case st := <-stateCh:
			states = append(states, st)
		case <-time.After(wait):
			t.Fatalf("missing state transitions, got %v", states)
		}
	}
	select {
	case st := <-stateCh:
		t.Fatalf("unexpected extra transition %s after %v", st, states)
	case <-time.After(50 * time.Millisecond):
	}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("state transitions=%v want=%v", states, want)
	}
}

func TestStream_StateCallbacksFollowAppliedOrder(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s, _ := signedInStream(t, srv)

	var (
		mu   sync.Mutex
		seen []State
	)
	defer s.OnStateChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_ = s.SetActive(ctx, true)
		if i%3 == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = s.SetActive(ctx, false)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != StateIdle || s.State() != StateIdle {
		t.Fatalf("last delivered state must match the stream: seen=%v state=%s", seen, s.State())
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] == seen[i-1] {
			t.Fatalf("duplicate transition at %d: %v", i, seen)
		}
	}
}

func TestStream_NoToken(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s := New(srv.BaseURL(), tokenstore.NewMemoryStore(), WithLogger(quietLogger()))
	defer s.Close()

	if err := s.SetActive(context.Background(), true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if s.Active() || s.State() != StateIdle {
		t.Fatalf("stream without a token must stay idle")
	}
	if len(srv.Requests()) != 0 {
		t.Fatalf("no connection should be attempted")
	}
}

func TestStream_RejectedToken(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	store := tokenstore.NewMemoryStore()
	_ = store.Save(context.Background(), tokenstore.Pair{Access: "bogus", Refresh: "bogus"})
	s := New(srv.BaseURL(), store, WithLogger(quietLogger()))
	defer s.Close()

	if err := s.SetActive(context.Background(), true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	apitest.Eventually(t, wait, func() bool {
		return len(srv.Requests()) == 1 && s.State() == StateIdle
	}, "server rejected the socket")
	if got := srv.Requests()[0].Path; got != v1.Path {
		t.Fatalf("dialed %q", got)
	}
}

func TestStream_DialFailure(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemoryStore()
	_ = store.Save(context.Background(), tokenstore.Pair{Access: "a", Refresh: "r"})
	m := NewMetrics(prometheus.NewRegistry())
	s := New("http://127.0.0.1:1", store, WithLogger(quietLogger()), WithMetrics(m), WithDialTimeout(time.Second))
	defer s.Close()

	if err := s.SetActive(context.Background(), true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	apitest.Eventually(t, wait, func() bool {
		return testutil.ToFloat64(m.connections.WithLabelValues("fail")) == 1 && s.State() == StateIdle
	}, "dial failure recorded")
}

func TestStream_DismissAndClear(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s, uid := signedInStream(t, srv)
	connect(t, srv, s, uid)

	for i := 0; i < 3; i++ {
		_ = srv.Push(uid, map[string]any{"event": v1.EventProfileUpdated, "n": i})
	}
	apitest.Eventually(t, wait, func() bool { return len(s.Events()) == 3 }, "events delivered")

	evs := s.Events()
	if !s.Dismiss(evs[1].ID) {
		t.Fatalf("Dismiss returned false")
	}
	if s.Dismiss("missing") {
		t.Fatalf("Dismiss of unknown id returned true")
	}
	left := s.Events()
	if len(left) != 2 || left[0].ID != evs[0].ID || left[1].ID != evs[2].ID {
		t.Fatalf("unexpected feed after dismiss: %+v", left)
	}
	if len(evs) != 3 {
		t.Fatalf("earlier snapshot was mutated")
	}

	s.Clear()
	if len(s.Events()) != 0 {
		t.Fatalf("Clear left events behind")
	}
	if s.State() != StateConnected {
		t.Fatalf("feed operations must not touch the connection")
	}
}

func TestStream_StaleConnectionIgnored(t *testing.T) {
	t.Parallel()

	s := New("http://localhost:9000", tokenstore.NewMemoryStore(), WithLogger(quietLogger()))
	current, stale := newConnection(), newConnection()
	s.conn = current

	s.deliver(stale, []byte(`{"event":"team_invitation"}`))
	if len(s.Events()) != 0 {
		t.Fatalf("message from a replaced connection was applied")
	}

	current.teardown(1000, "")
	s.deliver(current, []byte(`{"event":"team_invitation"}`))
	if len(s.Events()) != 0 {
		t.Fatalf("message from a torn-down connection was applied")
	}
}

func TestStream_Close(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	s, uid := signedInStream(t, srv)
	connect(t, srv, s, uid)

	s.Close()
	s.Close()
	apitest.Eventually(t, wait, func() bool { return srv.Connections(uid) == 0 }, "socket closed")

	if err := s.SetActive(context.Background(), true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.SetActive(context.Background(), false); err != nil {
		t.Fatalf("deactivating a closed stream should be fine, got %v", err)
	}
}
