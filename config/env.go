package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed settings and keeps every value that failed to parse, so a typo in the
// environment stops startup instead of quietly running with the default.
type envReader struct {
	errs []error
}

// lookup treats an empty value the same as an unset one.
func lookup(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (r *envReader) invalid(key, value, want string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not a valid %s: %w", key, value, want, err))
}

func (r *envReader) String(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) Int(key string, defaultValue int) int {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, "integer", err)
		return defaultValue
	}
	return n
}

func (r *envReader) Int64(key string, defaultValue int64) int64 {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.invalid(key, value, "integer", err)
		return defaultValue
	}
	return n
}

func (r *envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid(key, value, "duration", err)
		return defaultValue
	}
	return d
}

// List splits a comma-separated value and trims each item.
func (r *envReader) List(key string, defaultValue []string) []string {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
