package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"teamdash/cmd/internal/auth/session"
	"teamdash/cmd/internal/notify"

	"golang.org/x/sync/errgroup"
)

// cmdWatch keeps the notification stream open while the session is
// authenticated and prints each event once, oldest first. It returns when ctx
// is cancelled or the stream goes idle.
func (a *App) cmdWatch(ctx context.Context, args []string) error {
	fs := a.flagSet("watch")
	metricsAddr := fs.String("metrics-addr", a.cfg.MetricsAddr, "serve /metrics, /healthz and /readyz on this address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	u, err := a.session.RequireUser()
	if err != nil {
		return a.fail(err, NotLoggedInMessage)
	}

	out := &lockedWriter{w: a.out}
	var (
		connected atomic.Bool
		lastID    string
	)
	idle := make(chan struct{}, 1)

	unsubState := a.stream.OnStateChange(func(st notify.State) {
		switch st {
		case notify.StateConnected:
			connected.Store(true)
			fmt.Fprintln(out, "Connected. Waiting for notifications (Ctrl-C to stop).")
		case notify.StateIdle:
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})
	defer unsubState()

	// Feed callbacks are serialized by the stream; ids sort by arrival.
	unsubFeed := a.stream.Subscribe(func(evs []notify.Event) {
		for i := len(evs) - 1; i >= 0; i-- {
			if evs[i].ID > lastID {
				printEvent(out, evs[i])
				lastID = evs[i].ID
			}
		}
	})
	defer unsubFeed()

	unsubSession := a.session.Subscribe(func(st session.State) {
		if !st.Authenticated {
			_ = a.stream.SetActive(context.Background(), false)
		}
	})
	defer unsubSession()

	fmt.Fprintf(out, "Watching notifications for %s.\n", u.DisplayName())
	if err := a.stream.SetActive(ctx, a.session.State().Authenticated); err != nil {
		return a.fail(err, "Unable to connect to notifications.")
	}
	if !a.stream.Active() {
		return &CommandError{Msg: NotLoggedInMessage}
	}
	defer func() { _ = a.stream.SetActive(context.Background(), false) }()

	g, gctx := errgroup.WithContext(ctx)
	if *metricsAddr != "" {
		d, err := newDiagServer(*metricsAddr, a.log, a.reg, a.ready)
		if err != nil {
			return a.fail(err, "Unable to start the metrics server.")
		}
		fmt.Fprintf(out, "Serving metrics on http://%s/metrics\n", d.Addr())
		g.Go(func() error { return d.Serve(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-idle:
		}
		if !connected.Load() {
			return &CommandError{Msg: "Unable to connect to notifications."}
		}
		return &CommandError{Msg: "Notification stream closed."}
	})

	return g.Wait()
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
