// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testEnvKey = "SAVESYNC_TEST_VALUE"

func TestParseString(t *testing.T) {
	assert.Equal(t, "default", ParseString(testEnvKey, "default"), "unset")

	t.Setenv(testEnvKey, "")
	assert.Equal(t, "default", ParseString(testEnvKey, "default"), "empty falls back")

	t.Setenv(testEnvKey, "from-env")
	assert.Equal(t, "from-env", ParseString(testEnvKey, "default"))
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{name: "valid", env: "42", want: 42},
		{name: "negative", env: "-7", want: -7},
		{name: "invalid falls back", env: "forty-two", want: 10},
		{name: "empty falls back", env: "", want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testEnvKey, tt.env)
			assert.Equal(t, tt.want, ParseInt(testEnvKey, 10))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want time.Duration
	}{
		{name: "seconds", env: "30s", want: 30 * time.Second},
		{name: "compound", env: "1m30s", want: 90 * time.Second},
		{name: "bare number rejected", env: "30", want: time.Minute},
		{name: "negative rejected", env: "-5s", want: time.Minute},
		{name: "garbage rejected", env: "soon", want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testEnvKey, tt.env)
			assert.Equal(t, tt.want, ParseDuration(testEnvKey, time.Minute))
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		env  string
		def  bool
		want bool
	}{
		{env: "true", want: true},
		{env: "TRUE", want: true},
		{env: "1", want: true},
		{env: "yes", want: true},
		{env: "false", def: true, want: false},
		{env: "0", def: true, want: false},
		{env: "No", def: true, want: false},
		{env: "maybe", def: true, want: true},
		{env: "", def: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(testEnvKey, tt.env)
			assert.Equal(t, tt.want, ParseBool(testEnvKey, tt.def))
		})
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv(testEnvKey, "0.25")
	assert.InDelta(t, 0.25, ParseFloat(testEnvKey, 1), 1e-9)

	t.Setenv(testEnvKey, "lots")
	assert.InDelta(t, 1.0, ParseFloat(testEnvKey, 1), 1e-9)
}
