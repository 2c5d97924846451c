package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultErrorMessage is shown when no better message can be extracted.
const DefaultErrorMessage = "An unexpected error occurred."

// SessionExpiredMessage is shown when the session could not be refreshed.
const SessionExpiredMessage = "Your session has expired. Please log in again."

var (
	// ErrMissingRefreshToken is returned when a refresh is needed but none is stored.
	ErrMissingRefreshToken = errors.New("missing refresh token")

	// ErrSessionExpired is the Kind of every refresh failure.
	ErrSessionExpired = errors.New("session expired")

	// ErrConfig is returned for invalid client configuration.
	ErrConfig = errors.New("invalid client config")
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, msg)
}

// RefreshError wraps the cause of a failed token refresh.
// It matches both ErrSessionExpired and the cause with errors.Is.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSessionExpired.Error(), e.Err)
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSessionExpired}
	}
	return []error{ErrSessionExpired, e.Err}
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Message returns a human-readable message for err, falling back to fallback
// (or DefaultErrorMessage when fallback is empty).
//
// API errors use the message extracted from the response body; session
// failures use SessionExpiredMessage; other errors use their own text.
func Message(err error, fallback string) string {
	if fallback == "" {
		fallback = DefaultErrorMessage
	}
	if err == nil {
		return fallback
	}

	if errors.Is(err, ErrSessionExpired) {
		return SessionExpiredMessage
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

// newError builds an *Error from a response body.
//
// Message extraction order:
//   - "message" string
//   - "detail" string
//   - "msg" of the first "detail" entry (validation error list)
//   - "error.message" / "error.code" envelope
func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: body}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}

	if s, ok := rawString(raw["message"]); ok && s != "" {
		e.Message = s
		return e
	}

	if d, ok := raw["detail"]; ok {
		if s, ok := rawString(d); ok && s != "" {
			e.Message = s
			return e
		}
		var list []struct {
			Msg  string `json:"msg"`
			Type string `json:"type"`
		}
		if json.Unmarshal(d, &list) == nil && len(list) > 0 && list[0].Msg != "" {
			e.Message = list[0].Msg
			e.Code = list[0].Type
			return e
		}
	}

	if env, ok := raw["error"]; ok {
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(env, &obj) == nil {
			e.Code = obj.Code
			e.Message = obj.Message
		}
	}
	return e
}

func rawString(r json.RawMessage) (string, bool) {
	if len(r) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return "", false
	}
	return s, true
}
