// SPDX-License-Identifier: MIT

// Package validate accumulates configuration validation errors so that all
// problems are reported at once instead of one per restart.
package validate

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError is every rejected field of one validation pass.
type ValidationError []Error

// Errors returns the individual field errors.
func (e ValidationError) Errors() []Error {
	return e
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validator collects field errors. The zero value is ready to use.
type Validator struct {
	errs ValidationError
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Add records a failed field.
func (v *Validator) Add(field string, value any, format string, args ...any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

// IsValid reports whether nothing was rejected so far.
func (v *Validator) IsValid() bool {
	return len(v.errs) == 0
}

// Errors returns the collected field errors.
func (v *Validator) Errors() []Error {
	return v.errs
}

// Err returns a ValidationError, or nil when valid.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return append(ValidationError(nil), v.errs...)
}

// ListenAddr accepts host:port with an empty, localhost or IP host and a
// numeric port in 1-65535.
func (v *Validator) ListenAddr(field, addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.Add(field, addr, "invalid listen address: %v", err)
		return
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		v.Add(field, addr, "invalid listen host %q", host)
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		v.Add(field, addr, "port must be a number between 1 and 65535, got %q", port)
	}
}

// Range checks minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.Add(field, value, "must be between %d and %d, got %d", minVal, maxVal, value)
	}
}

// DurationRange checks minVal <= d <= maxVal.
func (v *Validator) DurationRange(field string, d, minVal, maxVal time.Duration) {
	if d < minVal || d > maxVal {
		v.Add(field, d, "must be between %s and %s, got %s", minVal, maxVal, d)
	}
}

// Fraction checks 0 <= f <= 1.
func (v *Validator) Fraction(field string, f float64) {
	if f < 0 || f > 1 {
		v.Add(field, f, "must be between 0 and 1, got %g", f)
	}
}

// Directory rejects empty paths, ".." segments, and paths that exist but are
// not directories. A missing directory is fine; startup creates it.
func (v *Validator) Directory(field, path string) {
	if strings.TrimSpace(path) == "" {
		v.Add(field, path, "directory path cannot be empty")
		return
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == os.PathSeparator }) {
		if seg == ".." {
			v.Add(field, path, "path must not contain ..")
			return
		}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		v.Add(field, path, "cannot access directory: %v", err)
	case !info.IsDir():
		v.Add(field, path, "not a directory")
	}
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, value, "must not be empty")
	}
}

// OneOf checks value against the allowed set.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Add(field, value, "must be one of %s, got %q", strings.Join(allowed, ", "), value)
}

// Regexp checks that value compiles.
func (v *Validator) Regexp(field, value string) {
	if _, err := regexp.Compile(value); err != nil {
		v.Add(field, value, "invalid regular expression: %v", err)
	}
}
