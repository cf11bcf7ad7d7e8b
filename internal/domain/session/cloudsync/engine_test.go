// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/infrastructure/remote/fsremote"
)

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestUploadDeleteDownload_RoundTrip(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	a := newDevice(t, "a", remote, nil)

	a.save(t, "Wizard", "level-7")
	before := readTree(t, a.local.Path("Wizard"))

	require.NoError(t, a.engine.Upload(ctx, "Wizard"))
	m := a.metadata(t, "Wizard")
	require.NotNil(t, m)
	require.NotNil(t, m.SyncedAt)
	require.NotEmpty(t, m.RemoteVersion)
	assert.False(t, a.engine.IsCloudOnly(ctx, "Wizard"))

	require.NoError(t, a.engine.Delete(ctx, "Wizard", ScopeLocalOnly))
	assert.False(t, a.local.Exists("Wizard"))
	assert.Nil(t, a.metadata(t, "Wizard"))
	assert.True(t, a.engine.IsCloudOnly(ctx, "Wizard"))

	name, err := a.engine.Download(ctx, "Wizard")
	require.NoError(t, err)
	assert.Equal(t, "Wizard", name)
	if diff := cmp.Diff(before, readTree(t, a.local.Path("Wizard"))); diff != "" {
		t.Errorf("round trip changed bundle (-want +got):\n%s", diff)
	}

	m = a.metadata(t, "Wizard")
	require.NotNil(t, m)
	require.NotNil(t, m.DownloadedAt)
	assert.Equal(t, model.SyncSynced, model.DeriveSyncStatus(m, true, true))
}

func TestDiscover_Idempotent(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	a := newDevice(t, "a", remote, nil)
	a.save(t, "Wizard", "w")
	a.save(t, "Rogue", "r")
	require.NoError(t, a.engine.Upload(ctx, "Wizard"))
	require.NoError(t, a.engine.Upload(ctx, "Rogue"))

	b := newDevice(t, "b", remote, nil)
	n, err := b.engine.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.engine.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second pass without remote change must queue nothing")

	require.Eventually(t, func() bool {
		return b.local.Exists("Wizard") && b.local.Exists("Rogue")
	}, 5*time.Second, 10*time.Millisecond)

	n, err = b.engine.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "w", b.content(t, "Wizard"))
}

func TestDiscover_PatternFilters(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	a := newDevice(t, "a", remote, nil)
	a.save(t, "Wizard", "w")
	a.save(t, "tmp-Scratch", "x")
	require.NoError(t, a.engine.Upload(ctx, "Wizard"))
	require.NoError(t, a.engine.Upload(ctx, "tmp-Scratch"))

	b := newDevice(t, "b", remote, func(c *Config) { c.BundlePattern = `^[A-Z]` })
	n, err := b.engine.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return b.local.Exists("Wizard") }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, b.local.Exists("tmp-Scratch"))
}

func TestWizardPlaceholderScenario(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 50*time.Millisecond)

	b := newDevice(t, "b", remote, nil)
	b.save(t, "Wizard", "local-only")
	assert.False(t, b.engine.IsCloudOnly(ctx, "Wizard"), "local-only entity is not cloud-only")

	a := newDevice(t, "a", remote, nil)
	a.save(t, "Wizard", "from-a")
	require.NoError(t, a.engine.Upload(ctx, "Wizard"))
	require.NoError(t, remote.Evict(ctx, "Wizard"))

	c := newDevice(t, "c", remote, nil)
	assert.True(t, c.engine.IsCloudOnly(ctx, "Wizard"))

	name, err := c.engine.Download(ctx, "Wizard")
	require.NoError(t, err)
	assert.Equal(t, "Wizard", name)
	assert.False(t, c.engine.IsCloudOnly(ctx, "Wizard"))
	assert.Equal(t, "from-a", c.content(t, "Wizard"))
}

func TestDownload_PlaceholderTimeout(t *testing.T) {
	ctx := context.Background()
	remote, root := newRemote(t, 0)
	// A marker whose content never arrives.
	require.NoError(t, os.WriteFile(filepath.Join(root, "Saves", ".Ghost.placeholder"), []byte("Ghost"), 0o600))

	d := newDevice(t, "d", remote, func(c *Config) { c.DownloadTimeout = 100 * time.Millisecond })
	_, err := d.engine.Download(ctx, "Ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDownloadTimeout)
	assert.ErrorIs(t, err, ports.ErrRemoteDownloadFailure)
	assert.False(t, d.local.Exists("Ghost"))
	assert.Nil(t, d.metadata(t, "Ghost"))
}

func TestDownload_CancelLeavesLocalUntouched(t *testing.T) {
	remote, root := newRemote(t, 0)
	d := newDevice(t, "d", remote, nil)
	d.save(t, "Wizard", "keep-me")
	require.NoError(t, os.WriteFile(filepath.Join(root, "Saves", ".Wizard.placeholder"), []byte("Wizard"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.engine.Download(ctx, "Wizard")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "keep-me", d.content(t, "Wizard"))
	assert.Nil(t, d.metadata(t, "Wizard").DownloadedAt)
}

func TestDownload_SharedTransferOutlivesFirstCaller(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 300*time.Millisecond)
	a := newDevice(t, "a", remote, nil)
	a.save(t, "Wizard", "from-a")
	require.NoError(t, a.engine.Upload(ctx, "Wizard"))
	require.NoError(t, remote.Evict(ctx, "Wizard"))

	c := newDevice(t, "c", remote, nil)
	waiters := func() int {
		c.engine.flightMu.Lock()
		defer c.engine.flightMu.Unlock()
		if f := c.engine.flights["Wizard"]; f != nil {
			return f.waiters
		}
		return 0
	}

	firstCtx, cancelFirst := context.WithCancel(ctx)
	defer cancelFirst()
	first := make(chan error, 1)
	go func() {
		_, err := c.engine.Download(firstCtx, "Wizard")
		first <- err
	}()
	require.Eventually(t, func() bool { return waiters() == 1 }, 2*time.Second, 5*time.Millisecond)

	type result struct {
		name string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		name, err := c.engine.Download(ctx, "Wizard")
		second <- result{name, err}
	}()
	require.Eventually(t, func() bool { return waiters() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-first, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "Wizard", res.name)
	assert.Equal(t, "from-a", c.content(t, "Wizard"))
	assert.Zero(t, waiters())
}

func TestDownload_CaseInsensitiveResolution(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	a := newDevice(t, "a", remote, nil)
	a.save(t, "Wizard", "w")
	require.NoError(t, a.engine.Upload(ctx, "Wizard"))

	b := newDevice(t, "b", remote, nil)
	assert.True(t, b.engine.IsCloudOnly(ctx, "WIZARD"))
	name, err := b.engine.Download(ctx, "wizard")
	require.NoError(t, err)
	assert.Equal(t, "Wizard", name)
	assert.True(t, b.local.Exists("Wizard"))

	_, err = b.engine.Download(ctx, "Nobody")
	assert.ErrorIs(t, err, ports.ErrEntityNotFound)
	assert.ErrorIs(t, err, ports.ErrRemoteDownloadFailure)
}

func TestRemoteUnavailable(t *testing.T) {
	ctx := context.Background()
	remote, err := fsremote.Open(fsremote.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })

	d := newDevice(t, "d", remote, nil)
	assert.False(t, d.engine.Available())
	d.save(t, "Wizard", "w")

	err = d.engine.Upload(ctx, "Wizard")
	assert.ErrorIs(t, err, ports.ErrRemoteUnavailable)
	_, err = d.engine.Download(ctx, "Wizard")
	assert.ErrorIs(t, err, ports.ErrRemoteUnavailable)
	assert.False(t, d.engine.IsCloudOnly(ctx, "Wizard"))
	assert.False(t, d.engine.WaitForAvailability(ctx, 30*time.Millisecond))

	// Local delete still works without a remote.
	require.NoError(t, d.engine.Delete(ctx, "Wizard", ScopeEverywhere))
	assert.False(t, d.local.Exists("Wizard"))

	require.NoError(t, remote.SetIdentity("player@example.com"))
	assert.False(t, d.engine.Available(), "availability is probed once, not polled")
	assert.True(t, d.engine.AccountChanged(ctx))
	assert.True(t, d.engine.WaitForAvailability(ctx, time.Second))
}

func TestUpload_MissingLocal(t *testing.T) {
	remote, _ := newRemote(t, 0)
	d := newDevice(t, "d", remote, nil)
	err := d.engine.Upload(context.Background(), "Nobody")
	assert.ErrorIs(t, err, ports.ErrLocalNotFound)
	assert.ErrorIs(t, err, ports.ErrRemoteUploadFailure)
}

func TestDelete_LocalOnlyKeepsRemote(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	d := newDevice(t, "d", remote, nil)
	d.save(t, "Wizard", "w")
	require.NoError(t, d.engine.Upload(ctx, "Wizard"))

	require.NoError(t, d.engine.Delete(ctx, "Wizard", ScopeLocalOnly))
	_, err := remote.Stat(ctx, "Wizard")
	assert.NoError(t, err)

	require.NoError(t, d.engine.Delete(ctx, "Wizard", ScopeEverywhere))
	_, err = remote.Stat(ctx, "Wizard")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDelete_WaitsForUploadGate(t *testing.T) {
	ctx := context.Background()
	base, _ := newRemote(t, 0)
	br := newBlockingRemote(base)
	d := newDevice(t, "d", br, nil)
	d.save(t, "Wizard", "w")

	upErr := make(chan error, 1)
	go func() { upErr <- d.engine.Upload(ctx, "Wizard") }()
	select {
	case <-br.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never reached publish")
	}
	assert.Equal(t, []string{"Wizard"}, d.engine.Uploading())

	delErr := make(chan error, 1)
	go func() { delErr <- d.engine.Delete(ctx, "Wizard", ScopeEverywhere) }()
	select {
	case err := <-delErr:
		t.Fatalf("delete finished while upload in flight: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	br.unblock()
	require.NoError(t, <-upErr)
	require.NoError(t, <-delErr)

	_, err := base.Stat(ctx, "Wizard")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, d.local.Exists("Wizard"))
	assert.Empty(t, d.engine.Uploading())
}

func TestDelete_LocalOnlyWaitsForUploadGate(t *testing.T) {
	ctx := context.Background()
	base, _ := newRemote(t, 0)
	br := newBlockingRemote(base)
	d := newDevice(t, "d", br, nil)
	d.save(t, "Wizard", "w")

	upErr := make(chan error, 1)
	go func() { upErr <- d.engine.Upload(ctx, "Wizard") }()
	select {
	case <-br.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never reached publish")
	}

	delErr := make(chan error, 1)
	go func() { delErr <- d.engine.Delete(ctx, "Wizard", ScopeLocalOnly) }()
	select {
	case err := <-delErr:
		t.Fatalf("local delete finished while upload in flight: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	br.unblock()
	require.NoError(t, <-upErr)
	require.NoError(t, <-delErr)

	// The finished upload must not leave metadata behind for a deleted save.
	assert.Nil(t, d.metadata(t, "Wizard"))
	assert.False(t, d.local.Exists("Wizard"))
	_, err := base.Stat(ctx, "Wizard")
	assert.NoError(t, err)
}

func TestDelete_GatePolicyFail(t *testing.T) {
	ctx := context.Background()
	base, _ := newRemote(t, 0)
	br := newBlockingRemote(base)
	d := newDevice(t, "d", br, func(c *Config) {
		c.DeleteGateTimeout = 50 * time.Millisecond
		c.GatePolicy = GatePolicyFail
	})
	d.save(t, "Wizard", "w")

	upErr := make(chan error, 1)
	go func() { upErr <- d.engine.Upload(ctx, "Wizard") }()
	<-br.entered

	err := d.engine.Delete(ctx, "Wizard", ScopeEverywhere)
	assert.ErrorIs(t, err, ports.ErrUploadInProgress)
	assert.True(t, d.local.Exists("Wizard"))

	br.unblock()
	require.NoError(t, <-upErr)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	remote, _ := newRemote(t, 0)
	_, err := New(Config{GatePolicy: "maybe"}, remote, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{BundlePattern: "("}, remote, nil, nil)
	assert.Error(t, err)
}

func TestBackgroundFailures_RetryAndDismiss(t *testing.T) {
	ctx := context.Background()
	base, _ := newRemote(t, 0)
	fr := &failingRemote{RemoteStore: base}
	fr.setFail(errors.New("disk full"))
	d := newDevice(t, "d", fr, nil)
	d.save(t, "Wizard", "w")

	sub := d.engine.Subscribe()
	defer func() { _ = sub.Close() }()

	d.engine.UploadInBackground("Wizard")
	require.Eventually(t, func() bool { return len(d.engine.Failures()) == 1 }, 5*time.Second, 10*time.Millisecond)

	f := d.engine.Failures()[0]
	assert.Equal(t, OpUpload, f.Op)
	assert.Equal(t, "Wizard", f.Entity)
	assert.ErrorIs(t, f.Err, ports.ErrRemoteUploadFailure)

	// Same entity and op refresh the entry instead of appending.
	d.engine.UploadInBackground("Wizard")
	require.Eventually(t, func() bool {
		list := d.engine.Failures()
		return len(list) == 1 && list[0].Attempts == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.Error(t, d.engine.Retry(ctx, f.ID))
	assert.Equal(t, 3, d.engine.Failures()[0].Attempts)

	fr.setFail(nil)
	require.NoError(t, d.engine.Retry(ctx, f.ID))
	assert.Empty(t, d.engine.Failures())
	assert.NotNil(t, d.metadata(t, "Wizard").SyncedAt)

	assert.ErrorIs(t, d.engine.Retry(ctx, f.ID), ErrFailureNotFound)
	assert.ErrorIs(t, d.engine.Dismiss("nope"), ErrFailureNotFound)

	var sawFailed bool
	for !sawFailed {
		select {
		case ev := <-sub.C():
			sawFailed = ev.Kind == EventFailed && ev.Entity == "Wizard"
		case <-time.After(time.Second):
			t.Fatal("no failure event")
		}
	}
}

func TestRetryAll(t *testing.T) {
	ctx := context.Background()
	base, _ := newRemote(t, 0)
	fr := &failingRemote{RemoteStore: base}
	fr.setFail(errors.New("offline"))
	d := newDevice(t, "d", fr, nil)
	d.save(t, "Wizard", "w")
	d.save(t, "Rogue", "r")

	d.engine.UploadInBackground("Wizard")
	d.engine.UploadInBackground("Rogue")
	require.Eventually(t, func() bool { return len(d.engine.Failures()) == 2 }, 5*time.Second, 10*time.Millisecond)

	assert.Error(t, d.engine.RetryAll(ctx))
	assert.Len(t, d.engine.Failures(), 2)

	fr.setFail(nil)
	require.NoError(t, d.engine.RetryAll(ctx))
	assert.Empty(t, d.engine.Failures())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRemote(t, 0)
	a := newDevice(t, "a", remote, nil)
	a.save(t, "Bard", "b")
	require.NoError(t, a.engine.Upload(ctx, "Bard"))

	d := newDevice(t, "d", remote, nil)
	d.save(t, "Local", "l")
	d.save(t, "Wizard", "w")
	require.NoError(t, d.engine.Upload(ctx, "Wizard"))

	rows, err := d.engine.Status(ctx)
	require.NoError(t, err)
	got := make(map[string]model.SyncStatus)
	for _, r := range rows {
		got[r.Name] = r.Status
	}
	assert.Equal(t, map[string]model.SyncStatus{
		"Bard":   model.SyncCloudOnly,
		"Local":  model.SyncLocalOnly,
		"Wizard": model.SyncSynced,
	}, got)

	d.save(t, "Wizard", "w2")
	rows, err = d.engine.Status(ctx)
	require.NoError(t, err)
	for _, r := range rows {
		if r.Name == "Wizard" {
			assert.Equal(t, model.SyncPendingUpload, r.Status)
		}
	}
}
