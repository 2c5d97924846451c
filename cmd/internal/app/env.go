package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads TEAMDASH_* variables. Unlike a silent fallback, a value
// that is set but malformed is recorded and reported by Err.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key, v, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %s", key, v, want))
}

// String reads a string with a default.
func (r *envReader) String(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

// Bool reads a bool with a default.
func (r *envReader) Bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "want a boolean")
		return def
	}
	return b
}

// Int reads a non-negative int with a default.
func (r *envReader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		r.fail(key, v, "want a non-negative integer")
		return def
	}
	return n
}

// Int32 reads a non-negative int32 with a default.
func (r *envReader) Int32(key string, def int32) int32 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		r.fail(key, v, "want a non-negative 32-bit integer")
		return def
	}
	return int32(n)
}

// Duration reads a positive duration with a default.
func (r *envReader) Duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(key, v, "want a positive duration such as 30s")
		return def
	}
	return d
}

// Err joins every malformed value seen so far.
func (r *envReader) Err() error { return errors.Join(r.errs...) }
