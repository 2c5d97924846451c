package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// APIMinLength and APIMaxLength are the bounds enforced by the API.
	APIMinLength = 8
	APIMaxLength = 128
)

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak also refuses guessable inputs (common, repeated, PIN, straight runs).
	RejectVeryWeak bool
}

// DefaultPolicy mirrors the API bounds.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      APIMinLength,
		MaxLength:      APIMaxLength,
		RejectVeryWeak: false,
	}
}

// FromEnv loads the policy from environment variables.
//
// Env surface:
// - TEAMDASH_PASSWORD_MIN_LEN (>= 8)
// - TEAMDASH_PASSWORD_MAX_LEN (<= 128)
// - TEAMDASH_PASSWORD_REJECT_VERY_WEAK (true/false)
func FromEnv() (Policy, error) {
	p := DefaultPolicy()

	if v, ok := os.LookupEnv("TEAMDASH_PASSWORD_MIN_LEN"); ok && strings.TrimSpace(v) != "" {
		n, err := atoiInRange(v, APIMinLength, APIMaxLength)
		if err != nil {
			return Policy{}, fmt.Errorf("TEAMDASH_PASSWORD_MIN_LEN: %w", err)
		}
		p.MinLength = n
	}

	if v, ok := os.LookupEnv("TEAMDASH_PASSWORD_MAX_LEN"); ok && strings.TrimSpace(v) != "" {
		n, err := atoiInRange(v, APIMinLength, APIMaxLength)
		if err != nil {
			return Policy{}, fmt.Errorf("TEAMDASH_PASSWORD_MAX_LEN: %w", err)
		}
		p.MaxLength = n
	}

	if v, ok := os.LookupEnv("TEAMDASH_PASSWORD_REJECT_VERY_WEAK"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Policy{}, fmt.Errorf("TEAMDASH_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		p.RejectVeryWeak = b
	}

	if p.MinLength > p.MaxLength {
		return Policy{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			p.MinLength,
			p.MaxLength,
		)
	}

	return p, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
