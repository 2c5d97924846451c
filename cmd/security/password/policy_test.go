package password

import (
	"errors"
	"strings"
	"testing"
)

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	strict := DefaultPolicy()
	strict.RejectVeryWeak = true

	cases := []struct {
		name   string
		policy Policy
		in     string
		want   error
	}{
		{name: "ok", policy: DefaultPolicy(), in: "s3cure-enough", want: nil},
		{name: "too short", policy: DefaultPolicy(), in: "short", want: ErrPasswordTooShort},
		{name: "exact min", policy: DefaultPolicy(), in: "12345678", want: nil},
		{name: "too long", policy: DefaultPolicy(), in: strings.Repeat("a", APIMaxLength+1), want: ErrPasswordTooLong},
		{name: "runes not bytes", policy: DefaultPolicy(), in: "ééééééé", want: ErrPasswordTooShort},
		{name: "weak allowed by default", policy: DefaultPolicy(), in: "password123", want: nil},
		{name: "weak rejected", policy: strict, in: "password123", want: ErrWeakPassword},
		{name: "all same rejected", policy: strict, in: "aaaaaaaaaa", want: ErrWeakPassword},
		{name: "pin rejected", policy: strict, in: "1234567890", want: ErrWeakPassword},
		{name: "long pin allowed", policy: strict, in: "904172385561", want: nil},
		{name: "ascending run rejected", policy: strict, in: "abcdefghij", want: ErrWeakPassword},
		{name: "descending run rejected", policy: strict, in: "ZYXWVUTS", want: ErrWeakPassword},
		{name: "product name rejected", policy: strict, in: "TeamDash", want: ErrWeakPassword},
		{name: "padded common rejected", policy: strict, in: "  passw0rd  ", want: ErrWeakPassword},
		{name: "mixed passes strict", policy: strict, in: "s3cure-enough", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.policy.Validate(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate(%q)=%v want=%v", tc.in, err, tc.want)
			}
		})
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("TEAMDASH_PASSWORD_MIN_LEN", "")
	t.Setenv("TEAMDASH_PASSWORD_MAX_LEN", "")
	t.Setenv("TEAMDASH_PASSWORD_REJECT_VERY_WEAK", "")

	p, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if p != DefaultPolicy() {
		t.Fatalf("expected defaults, got %+v", p)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("TEAMDASH_PASSWORD_MIN_LEN", "12")
	t.Setenv("TEAMDASH_PASSWORD_MAX_LEN", "64")
	t.Setenv("TEAMDASH_PASSWORD_REJECT_VERY_WEAK", "true")

	p, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if p.MinLength != 12 || p.MaxLength != 64 || !p.RejectVeryWeak {
		t.Fatalf("unexpected policy: %+v", p)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{key: "TEAMDASH_PASSWORD_MIN_LEN", val: "4"},
		{key: "TEAMDASH_PASSWORD_MAX_LEN", val: "512"},
		{key: "TEAMDASH_PASSWORD_REJECT_VERY_WEAK", val: "maybe"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv("TEAMDASH_PASSWORD_MIN_LEN", "")
			t.Setenv("TEAMDASH_PASSWORD_MAX_LEN", "")
			t.Setenv("TEAMDASH_PASSWORD_REJECT_VERY_WEAK", "")
			t.Setenv(tc.key, tc.val)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}

	t.Run("min above max", func(t *testing.T) {
		t.Setenv("TEAMDASH_PASSWORD_REJECT_VERY_WEAK", "")
		t.Setenv("TEAMDASH_PASSWORD_MIN_LEN", "64")
		t.Setenv("TEAMDASH_PASSWORD_MAX_LEN", "32")
		if _, err := FromEnv(); err == nil {
			t.Fatalf("expected error for min > max")
		}
	})
}
