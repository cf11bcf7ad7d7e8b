// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":8088", false},
		{"127.0.0.1:8088", false},
		{"localhost:1", false},
		{"[::1]:8088", false},
		{"8088", true},
		{":0", true},
		{":99999", true},
		{"nohost.example:80", true},
		{":http", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			v := New()
			v.ListenAddr("API.Listen", tt.addr)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "%v", v.Err())
		})
	}
}

func TestValidator_Ranges(t *testing.T) {
	v := New()
	v.Range("low", 0, 1, 10)
	v.Range("ok", 5, 1, 10)
	v.Range("high", 11, 1, 10)
	v.DurationRange("poll", time.Second, time.Millisecond, time.Minute)
	v.DurationRange("zero", 0, time.Millisecond, time.Minute)
	v.Fraction("sampling", 0.5)
	v.Fraction("sampling.high", 1.5)

	var fields []string
	for _, e := range v.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"low", "high", "zero", "sampling.high"}, fields)
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing", tmp, false},
		{"missing is created later", filepath.Join(tmp, "new", "nested"), false},
		{"empty", " ", true},
		{"regular file", file, true},
		{"traversal", "../etc", true},
		{"dots in a name", filepath.Join(tmp, "saves..old"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Directory("dir", tt.path)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "%v", v.Err())
		})
	}

	_, err := os.Stat(filepath.Join(tmp, "new"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "validation must not create directories")
}

func TestValidator_OneOfAndRegexp(t *testing.T) {
	v := New()
	v.OneOf("policy", "proceed", []string{"proceed", "fail"})
	v.Regexp("pattern", `^[^.].*$`)
	require.True(t, v.IsValid(), "%v", v.Err())

	v.OneOf("policy", "retry", []string{"proceed", "fail"})
	v.Regexp("pattern", `([`)
	require.Len(t, v.Errors(), 2)
	assert.Contains(t, v.Errors()[0].Message, "proceed, fail")
}

func TestValidationError_AggregatesMessages(t *testing.T) {
	v := New()
	v.NotEmpty("a", " ")
	v.Range("b", 0, 1, 10)
	v.OneOf("c", "badger", []string{"file", "sqlite"})

	err := v.Err()
	var verr ValidationError
	require.True(t, errors.As(err, &verr), "got %T", err)
	assert.Len(t, verr.Errors(), 3)
	for _, want := range []string{"a:", "b:", "c:", "badger"} {
		assert.Contains(t, err.Error(), want)
	}

	v.NotEmpty("d", "")
	assert.Len(t, verr, 3, "Err returns a snapshot")
}

func TestValidator_NoErrors(t *testing.T) {
	assert.NoError(t, New().Err())
}
