package form

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Checker accumulates field errors. The zero value is ready to use.
type Checker struct {
	errs Errors
}

// Fail records a failure for field unless one is already recorded for it.
func (c *Checker) Fail(field, msg string) {
	if c.errs.Field(field) != "" {
		return
	}
	c.errs = append(c.errs, FieldError{Field: field, Msg: msg})
}

// Required fails when v is blank.
func (c *Checker) Required(field, v string) {
	if strings.TrimSpace(v) == "" {
		c.Fail(field, "is required")
	}
}

// Length fails when v is outside [minLen, maxLen] runes. maxLen <= 0 means no upper bound.
func (c *Checker) Length(field, v string, minLen, maxLen int) {
	n := utf8.RuneCountInString(v)
	switch {
	case n < minLen && minLen == 1:
		c.Fail(field, "is required")
	case n < minLen:
		c.Fail(field, fmt.Sprintf("must be at least %d characters", minLen))
	case maxLen > 0 && n > maxLen:
		c.Fail(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
}

// Email fails when v is blank or not a bare address.
func (c *Checker) Email(field, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		c.Fail(field, "is required")
		return
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || !strings.Contains(v[strings.LastIndexByte(v, '@')+1:], ".") {
		c.Fail(field, "must be a valid email address")
	}
}

// OneOf fails when v is not in allowed.
func (c *Checker) OneOf(field, v string, allowed ...string) {
	for _, a := range allowed {
		if v == a {
			return
		}
	}
	c.Fail(field, "must be one of "+strings.Join(allowed, ", "))
}

// Positive fails when v <= 0.
func (c *Checker) Positive(field string, v int64) {
	if v <= 0 {
		c.Fail(field, "must be a positive id")
	}
}

// Err returns the accumulated Errors, or nil.
func (c *Checker) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}
