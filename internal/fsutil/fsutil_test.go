// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEntityName(t *testing.T) {
	valid := []string{"Wizard", "Rogue 2", "Élodie", "a..b", "Wizard (conflict 20260102-030405)"}
	for _, n := range valid {
		assert.NoError(t, ValidateEntityName(n), n)
	}

	invalid := []string{"", ".", "..", ".hidden", "a/b", `a\b`, " padded", "tab\tname", "star*"}
	for _, n := range invalid {
		assert.Error(t, ValidateEntityName(n), n)
	}
}

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	p, err := ConfineRelPath(root, "Wizard")
	require.NoError(t, err)
	assert.Equal(t, "Wizard", filepath.Base(p))

	for _, bad := range []string{"../escape", "/abs", `a\b`} {
		_, err := ConfineRelPath(root, bad)
		assert.Error(t, err, bad)
	}

	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	_, err = ConfineRelPath(root, "link")
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("beta"), 0o600))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, CopyTree(context.Background(), src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))

	// dst must not exist.
	assert.Error(t, CopyTree(context.Background(), src, dst))
}

func TestCopyTree_Cancelled(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CopyTree(ctx, src, filepath.Join(t.TempDir(), "dst"))
	assert.ErrorIs(t, err, context.Canceled)
}
