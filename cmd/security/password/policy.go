package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate reports the first rule password breaks, or nil.
func (p Policy) Validate(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n < p.MinLength:
		return ErrPasswordTooShort
	case n > p.MaxLength:
		return ErrPasswordTooLong
	}
	if p.RejectVeryWeak && guessable(password) {
		return ErrWeakPassword
	}
	return nil
}

// commonPasswords are lowercased entries the API also refuses.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"letmein123":  {},
	"welcome1":    {},
	"teamdash":    {},
	"dashboard":   {},
}

// weakRules each flag one family of guessable passwords.
var weakRules = []func(s string) bool{
	func(s string) bool { _, ok := commonPasswords[strings.ToLower(s)]; return ok },
	singleRune,
	shortPIN,
	straightRun,
}

func guessable(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	for _, rule := range weakRules {
		if rule(s) {
			return true
		}
	}
	return false
}

// singleRune matches "aaaaaaaa".
func singleRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	return strings.Trim(s, string(first)) == ""
}

// shortPIN matches all-digit inputs below twelve digits.
func shortPIN(s string) bool {
	return utf8.RuneCountInString(s) < 12 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

// straightRun matches "abcdefgh" or "98765432": every rune one step from the last.
func straightRun(s string) bool {
	rs := []rune(strings.ToLower(s))
	if len(rs) < 3 {
		return false
	}
	step := rs[1] - rs[0]
	if step != 1 && step != -1 {
		return false
	}
	for i := 2; i < len(rs); i++ {
		if rs[i]-rs[i-1] != step {
			return false
		}
	}
	return true
}
