// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/savesync/internal/validate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SAVESYNC_DATA_DIR", dir)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "remote"), cfg.Remote.Root)
	assert.Equal(t, filepath.Join(dir, "saves"), cfg.SavesDir())
	assert.Equal(t, "file", cfg.Metadata.Backend)
	assert.Equal(t, "proceed", cfg.Sync.DeleteGatePolicy)
	assert.Equal(t, 60*time.Second, cfg.Sync.DownloadTimeout)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.Equal(t, "v1.2.3", cfg.Version)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dir+`
metadata:
  backend: sqlite
sync:
  device: desk
  downloadTimeout: 90s
  deleteGatePolicy: fail
lifecycle:
  loadingTimeout: 45s
api:
  listen: "127.0.0.1:9000"
`)
	t.Setenv("SAVESYNC_SYNC_DEVICE", "laptop")
	t.Setenv("SAVESYNC_LOADING_TIMEOUT", "20s")

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Metadata.Backend, "file value")
	assert.Equal(t, 90*time.Second, cfg.Sync.DownloadTimeout, "file value")
	assert.Equal(t, "fail", cfg.Sync.DeleteGatePolicy, "file value")
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Listen, "file value")
	assert.Equal(t, "laptop", cfg.Sync.Device, "env beats file")
	assert.Equal(t, 20*time.Second, cfg.Lifecycle.LoadingTimeout, "env beats file")
	assert.Equal(t, 10*time.Second, cfg.Lifecycle.ExitingTimeout, "default survives")
}

func TestLoad_UnknownFieldIsFatal(t *testing.T) {
	path := writeConfig(t, "sync:\n  enabeld: true\n")

	_, err := NewLoader(path, "dev").Load()
	require.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	t.Setenv("SAVESYNC_DATA_DIR", t.TempDir())
	path := writeConfig(t, "log:\n  level: info\n---\nlog:\n  level: debug\n")

	_, err := NewLoader(path, "dev").Load()
	require.ErrorIs(t, err, ErrTrailingContent)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))

	_, err := NewLoader(p, "dev").Load()
	require.ErrorContains(t, err, "only YAML supported")
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	t.Setenv("SAVESYNC_DATA_DIR", t.TempDir())
	path := writeConfig(t, "")

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ValidationCollectsAllErrors(t *testing.T) {
	t.Setenv("SAVESYNC_DATA_DIR", t.TempDir())
	t.Setenv("SAVESYNC_METADATA_BACKEND", "postgres")
	t.Setenv("SAVESYNC_SYNC_DELETE_GATE_POLICY", "maybe")
	t.Setenv("SAVESYNC_SYNC_BUNDLE_PATTERN", "([")
	t.Setenv("SAVESYNC_LISTEN", "nowhere")

	_, err := NewLoader("", "dev").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"Metadata.Backend", "Sync.DeleteGatePolicy", "Sync.BundlePattern", "API.Listen"}, fields)
}

func TestLoad_SyncDisabledSkipsSyncValidation(t *testing.T) {
	t.Setenv("SAVESYNC_DATA_DIR", t.TempDir())
	t.Setenv("SAVESYNC_SYNC_ENABLED", "false")
	t.Setenv("SAVESYNC_SYNC_DELETE_GATE_POLICY", "maybe")

	_, err := NewLoader("", "dev").Load()
	require.NoError(t, err)
}

func TestUnknownEnvKeys(t *testing.T) {
	t.Setenv("SAVESYNC_DATA_DIR", t.TempDir())
	t.Setenv("SAVESYNC_SYNC_DEVISE", "typo")

	l := NewLoader("", "dev")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.UnknownEnvKeys(), "SAVESYNC_SYNC_DEVISE")
	assert.NotContains(t, l.UnknownEnvKeys(), "SAVESYNC_DATA_DIR")
}
