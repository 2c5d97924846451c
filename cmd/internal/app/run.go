package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run is the CLI entrypoint used by cmd/teamdash.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return Execute(ctx, cfg, log, args, os.Stdin, os.Stdout)
}

// Execute builds an App for one command and tears it down afterwards.
func Execute(ctx context.Context, cfg Config, log Logger, args []string, in io.Reader, out io.Writer) error {
	a, err := New(ctx, cfg, log, in, out)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	return a.Execute(ctx, args)
}
