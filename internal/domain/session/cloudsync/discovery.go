// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
	"github.com/ManuGH/savesync/internal/telemetry"
)

func knownKey(name, version string) string {
	return name + "@" + version
}

func (e *Engine) markKnown(name, version string) {
	e.knownMu.Lock()
	e.known[knownKey(name, version)] = struct{}{}
	e.knownMu.Unlock()
}

// claim marks name@version as handled and reports whether it was new.
func (e *Engine) claim(name, version string) bool {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	k := knownKey(name, version)
	if _, ok := e.known[k]; ok {
		return false
	}
	e.known[k] = struct{}{}
	return true
}

func (e *Engine) release(name, version string) {
	e.knownMu.Lock()
	delete(e.known, knownKey(name, version))
	e.knownMu.Unlock()
}

func (e *Engine) forget(name string) {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	for k := range e.known {
		if strings.HasPrefix(k, name+"@") {
			delete(e.known, k)
		}
	}
}

// pruneKnown drops keys for entries no longer listed remotely.
func (e *Engine) pruneKnown(entries []ports.RemoteEntry) {
	present := make(map[string]struct{}, len(entries))
	for _, en := range entries {
		present[en.Name] = struct{}{}
	}
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	for k := range e.known {
		name := k[:strings.LastIndex(k, "@")]
		if _, ok := present[name]; !ok {
			delete(e.known, k)
		}
	}
}

// Discover queues background downloads for remote bundles that are missing
// locally and returns how many were queued. Placeholders are asked to
// materialize first; the download waits for them. Re-running without a remote
// change queues nothing.
func (e *Engine) Discover(ctx context.Context) (queued int, err error) {
	start := time.Now()
	listed := 0
	ctx, span := e.tracer.Start(ctx, "sync.discover")
	defer func() {
		span.SetAttributes(telemetry.DiscoveryAttributes(listed, queued)...)
		telemetry.EndSpan(span, err)
		e.recordOp("discover", start, err)
	}()

	if !e.Available() {
		return 0, e.unavailable("discover", "")
	}
	entries, err := e.remote.List(ctx)
	if err != nil {
		return 0, ports.Wrap("discover", "", ports.ErrRemoteDownloadFailure, err)
	}
	listed = len(entries)
	e.pruneKnown(entries)

	for _, entry := range entries {
		name := entry.Name
		if !e.pattern.MatchString(name) || e.local.Exists(name) {
			continue
		}
		version := entry.Version()
		if !e.claim(name, version) {
			continue
		}

		if entry.State == ports.EntryPlaceholder {
			if err := e.remote.Materialize(ctx, name); err != nil {
				e.release(name, version)
				e.logger.Warn().Err(err).Str(xglog.FieldRemoteName, name).Msg("materialization request failed")
				continue
			}
		}

		if !e.goBackground(func(ctx context.Context) { e.backgroundDownload(ctx, name) }) {
			e.release(name, version)
			return queued, nil
		}
		queued++
		metrics.IncDiscoveryQueued(string(entry.State))
		e.logger.Info().
			Str(xglog.FieldEvent, "sync.discovered").
			Str(xglog.FieldRemoteName, name).
			Str(xglog.FieldVersion, version).
			Str("state", string(entry.State)).
			Msg("queued background download")
		e.publish(SyncEvent{Kind: EventDiscovered, Entity: name, Version: version})
	}
	return queued, nil
}

func (e *Engine) backgroundDownload(ctx context.Context, name string) {
	if _, err := e.Download(ctx, name); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.recordFailure(name, OpDownload, err, func(ctx context.Context) error {
			_, err := e.Download(ctx, name)
			return err
		})
	}
}

// RunDiscovery rescans whenever the remote tree changes, throttled to one
// pass per DiscoveryMinInterval, plus a periodic safety rescan. It returns
// when ctx is done.
func (e *Engine) RunDiscovery(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(e.cfg.DiscoveryMinInterval), 1)

	changes, err := e.remote.Changes(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("remote change feed unavailable, relying on periodic rescans")
		changes = nil
	}
	ticker := time.NewTicker(e.cfg.DiscoveryInterval)
	defer ticker.Stop()

	e.discoverOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			e.discoverOnce(ctx, "change")
		case <-ticker.C:
			e.discoverOnce(ctx, "periodic")
		}
	}
}

func (e *Engine) discoverOnce(ctx context.Context, trigger string) {
	if !e.Available() {
		return
	}
	n, err := e.Discover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn().Err(err).Str("trigger", trigger).Msg("discovery failed")
		}
		return
	}
	e.logger.Debug().Int("queued", n).Str("trigger", trigger).Msg("discovery pass complete")
}
