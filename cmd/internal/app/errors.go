package app

import (
	"context"
	"errors"
	"strings"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/auth/session"
	"teamdash/cmd/internal/form"
)

// ErrUsage marks command-line mistakes (unknown command, bad flags).
var ErrUsage = errors.New("usage")

// NotLoggedInMessage is shown by commands that need a session.
const NotLoggedInMessage = "You are not logged in. Run `teamdash login` first."

// CommandError is a failure with a message meant for the terminal.
type CommandError struct {
	Msg    string
	Fields form.Errors
	Err    error
}

func (e *CommandError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	var b strings.Builder
	b.WriteString(e.Msg)
	for _, f := range e.Fields {
		b.WriteString("\n  ")
		b.WriteString(f.Field)
		b.WriteString(": ")
		b.WriteString(f.Msg)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode maps a Run error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// fail turns an operation error into a CommandError. Server messages win over
// fallback; transport errors only show fallback and are logged.
func (a *App) fail(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var fields form.Errors
	if errors.As(err, &fields) {
		return &CommandError{Msg: "Please correct the following fields:", Fields: fields, Err: err}
	}
	if errors.Is(err, session.ErrNotAuthenticated) {
		return &CommandError{Msg: NotLoggedInMessage, Err: err}
	}

	var apiErr *apiclient.Error
	if errors.Is(err, apiclient.ErrSessionExpired) || errors.As(err, &apiErr) {
		return &CommandError{Msg: apiclient.Message(err, fallback), Err: err}
	}

	a.log.Warn("command.fail", "err", err)
	return &CommandError{Msg: fallback, Err: err}
}
