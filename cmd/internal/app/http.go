package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyFunc reports whether the process can do useful work.
type ReadyFunc func(ctx context.Context) error

func registerHTTP(mux *http.ServeMux, log Logger, reg *prometheus.Registry, ready ReadyFunc) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				log.Info("readyz.not_ready", "err", err)
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
}

// diagServer serves /healthz, /readyz and /metrics.
type diagServer struct {
	srv *http.Server
	ln  net.Listener
	log Logger
}

func newDiagServer(addr string, log Logger, reg *prometheus.Registry, ready ReadyFunc) (*diagServer, error) {
	mux := http.NewServeMux()
	registerHTTP(mux, log, reg, ready)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &diagServer{
		srv: &http.Server{
			Handler:           WithRequestLogging(mux, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ln:  ln,
		log: log,
	}, nil
}

// Addr is the bound address (useful with port 0).
func (d *diagServer) Addr() string { return d.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts the server down.
func (d *diagServer) Serve(ctx context.Context) error {
	d.log.Info("diag.start", "addr", d.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := d.srv.Serve(d.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			d.log.Error("diag.fail", "err", err)
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(shutdownCtx); err != nil {
		d.log.Error("diag.shutdown.fail", "err", err)
		return err
	}
	d.log.Info("diag.stopped")
	return nil
}
