// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/telemetry"
)

// Download copies the current remote version of entity into the local store
// and returns the name it was stored under, which is the remote spelling when
// the lookup matched case-insensitively. Concurrent calls for one entity share
// a single transfer, which runs until every caller has gone away.
func (e *Engine) Download(ctx context.Context, entity string) (string, error) {
	f := e.joinFlight(ctx, entity)
	defer e.leaveFlight(entity, f)

	for {
		ch := e.downloads.DoChan(entity, func() (any, error) {
			return e.download(f.ctx, entity)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				// A transfer from an earlier flight whose callers all left.
				if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil && f.ctx.Err() == nil {
					continue
				}
				return "", res.Err
			}
			return res.Val.(string), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// downloadFlight carries the context of the shared transfer for one entity.
// It is canceled when the last waiting caller leaves.
type downloadFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (e *Engine) joinFlight(ctx context.Context, entity string) *downloadFlight {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	f, ok := e.flights[entity]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &downloadFlight{ctx: fctx, cancel: cancel}
		e.flights[entity] = f
	}
	f.waiters++
	return f
}

func (e *Engine) leaveFlight(entity string, f *downloadFlight) {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if e.flights[entity] == f {
		delete(e.flights, entity)
	}
}

func (e *Engine) download(ctx context.Context, entity string) (name string, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "sync.download", trace.WithAttributes(telemetry.EntityAttributes(entity, "", "")...))
	defer func() {
		telemetry.EndSpan(span, err)
		e.recordOp("download", start, err)
	}()

	if !e.Available() {
		return "", e.unavailable("download", entity)
	}

	entry, err := e.resolve(ctx, entity)
	if err != nil {
		return "", ports.Wrap("download", entity, ports.ErrRemoteDownloadFailure, err)
	}
	name = entry.Name
	span.SetAttributes(telemetry.EntityAttributes("", name, "")...)

	if entry.State == ports.EntryPlaceholder {
		if err := e.remote.Materialize(ctx, name); err != nil {
			return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
		}
		if err := e.waitMaterialized(ctx, name); err != nil {
			return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
		}
	}

	staged, err := e.local.StagingDir()
	if err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	replaced := false
	defer func() {
		if !replaced {
			_ = os.RemoveAll(staged)
		}
	}()

	manifest, err := e.remote.CopyOut(ctx, name, staged)
	if err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	// Last chance to honour cancellation before the local bundle changes.
	if err := ctx.Err(); err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	if err := e.local.Replace(name, staged); err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	replaced = true

	now := e.now()
	existing, err := e.meta.Load(ctx, name)
	if err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	if existing == nil {
		savedAt := manifest.SavedAt
		if savedAt.IsZero() {
			savedAt = now
		}
		err = e.meta.Save(ctx, model.EntitySaveMetadata{
			Name:          name,
			LastSavedAt:   savedAt.UTC(),
			DownloadedAt:  &now,
			RemoteVersion: manifest.Version,
		})
	} else {
		err = e.meta.UpdateDownloadedAt(ctx, name, now, manifest.Version)
	}
	if err != nil {
		return "", ports.Wrap("download", name, ports.ErrRemoteDownloadFailure, err)
	}
	e.markKnown(name, manifest.Version)

	logger := xglog.WithContext(ctx, e.logger)
	logger.Info().
		Str(xglog.FieldEvent, "sync.downloaded").
		Str(xglog.FieldEntity, name).
		Str(xglog.FieldVersion, manifest.Version).
		Msg("download complete")
	e.publish(SyncEvent{Kind: EventDownloaded, Entity: name, Version: manifest.Version})
	return name, nil
}

// resolve finds the remote entry for entity: exact name first, then a Unicode
// case-folded match over the listing.
func (e *Engine) resolve(ctx context.Context, entity string) (ports.RemoteEntry, error) {
	entry, err := e.remote.Stat(ctx, entity)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return ports.RemoteEntry{}, err
	}

	list, err := e.remote.List(ctx)
	if err != nil {
		return ports.RemoteEntry{}, err
	}
	fold := cases.Fold()
	want := fold.String(entity)
	for _, candidate := range list {
		if fold.String(candidate.Name) == want {
			e.logger.Debug().
				Str(xglog.FieldEntity, entity).
				Str(xglog.FieldRemoteName, candidate.Name).
				Msg("resolved remote name case-insensitively")
			return candidate, nil
		}
	}
	return ports.RemoteEntry{}, ports.ErrEntityNotFound
}

// waitMaterialized polls the remote until name is materialized or the
// download timeout elapses.
func (e *Engine) waitMaterialized(ctx context.Context, name string) error {
	timeout := time.NewTimer(e.cfg.DownloadTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ports.ErrDownloadTimeout
		case <-ticker.C:
			entry, err := e.remote.Stat(ctx, name)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err == nil && entry.State == ports.EntryMaterialized {
				return nil
			}
		}
	}
}

// IsCloudOnly reports whether entity exists remotely (materialized or as a
// placeholder) but not locally. It is false while the remote is unavailable.
func (e *Engine) IsCloudOnly(ctx context.Context, entity string) bool {
	if !e.Available() || e.local.Exists(entity) {
		return false
	}
	_, err := e.resolve(ctx, entity)
	return err == nil
}
