// Package form holds client-side input checks shared by the account and team
// endpoints. A failed check never reaches the network.
package form

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is the Kind of every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// FieldError reports one invalid field.
// Field is a stable logical name ("email", "team_name", ...); Msg is shown to users as is.
type FieldError struct {
	Field string
	Msg   string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e FieldError) Unwrap() error { return ErrInvalidInput }

// Errors collects every failed field of one form, in check order.
type Errors []FieldError

func (es Errors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

func (es Errors) Unwrap() error { return ErrInvalidInput }

// Field returns the message for field, or "".
func (es Errors) Field(field string) string {
	for _, e := range es {
		if e.Field == field {
			return e.Msg
		}
	}
	return ""
}

// IsInvalidInput reports whether err is a validation failure.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
