package account

import (
	"errors"

	"teamdash/cmd/internal/form"
	"teamdash/cmd/security/password"
)

// Field limits enforced by the API.
const (
	MaxFirstName = 63
	MaxLastName  = 63
)

// ErrNoChanges is returned by UpdateProfile when nothing would change.
var ErrNoChanges = errors.New("no changes to save")

func checkPassword(c *form.Checker, field, pw string, policy password.Policy) {
	switch err := policy.Validate(pw); {
	case err == nil:
	case pw == "":
		c.Fail(field, "is required")
	case errors.Is(err, password.ErrPasswordTooShort):
		c.Length(field, pw, policy.MinLength, 0)
	case errors.Is(err, password.ErrPasswordTooLong):
		c.Length(field, pw, 0, policy.MaxLength)
	default:
		c.Fail(field, "is too easy to guess")
	}
}

// Validate checks the login form.
func (cr Credentials) Validate() error {
	var c form.Checker
	c.Email("email", cr.Email)
	c.Required("password", cr.Password)
	return c.Err()
}

// Validate checks the sign-up form against policy.
func (r Registration) Validate(policy password.Policy) error {
	var c form.Checker
	c.Email("email", r.Email)
	c.Length("first_name", r.FirstName, 1, MaxFirstName)
	c.Length("last_name", r.LastName, 0, MaxLastName)
	checkPassword(&c, "password", r.Password, policy)
	return c.Err()
}

// Validate checks the profile form.
func (p ProfileUpdate) Validate() error {
	var c form.Checker
	if p.FirstName != nil {
		c.Length("first_name", *p.FirstName, 1, MaxFirstName)
	}
	if p.LastName != nil {
		c.Length("last_name", *p.LastName, 0, MaxLastName)
	}
	return c.Err()
}

// Validate checks the reset form against policy.
func (r PasswordReset) Validate(policy password.Policy) error {
	var c form.Checker
	c.Required("token", r.Token)
	checkPassword(&c, "password", r.Password, policy)
	return c.Err()
}

func validateEmail(email string) error {
	var c form.Checker
	c.Email("email", email)
	return c.Err()
}

func validateToken(token string) error {
	var c form.Checker
	c.Required("token", token)
	return c.Err()
}
