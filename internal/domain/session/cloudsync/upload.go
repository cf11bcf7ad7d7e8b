// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
	"github.com/ManuGH/savesync/internal/telemetry"
)

// Upload publishes the local bundle of entity as the new current remote version.
//
// The remote replaces the current bundle only if it is the version this
// device last synced. Anything else, including a bundle another device
// published a moment earlier, is preserved as a conflict version.
func (e *Engine) Upload(ctx context.Context, entity string) error {
	return e.upload(ctx, entity, false)
}

func (e *Engine) upload(ctx context.Context, entity string, force bool) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "sync.upload", trace.WithAttributes(telemetry.EntityAttributes(entity, "", "")...))
	defer func() {
		telemetry.EndSpan(span, err)
		e.recordOp("upload", start, err)
	}()

	if !e.Available() {
		return e.unavailable("upload", entity)
	}
	if !e.local.Exists(entity) {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, ports.ErrLocalNotFound)
	}

	unlock := e.uploads.lock(entity)
	defer unlock()

	scratch, err := e.remote.ScratchDir(ctx)
	if err != nil {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(scratch)
		}
	}()
	if err := e.local.Snapshot(entity, scratch); err != nil {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, err)
	}

	e.gate.enter(entity)
	defer e.gate.leave(entity)

	meta, err := e.meta.Load(ctx, entity)
	if err != nil {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, err)
	}

	now := e.now()
	manifest := ports.Manifest{
		Version:     uuid.NewString(),
		Device:      e.cfg.Device,
		SavedAt:     now,
		PublishedAt: now,
	}
	opts := ports.PublishOptions{Overwrite: force}
	if meta != nil {
		opts.ExpectVersion = meta.RemoteVersion
		if !meta.LastSavedAt.IsZero() {
			manifest.SavedAt = meta.LastSavedAt.UTC()
		}
	}
	res, err := e.remote.Publish(ctx, scratch, entity, manifest, opts)
	if err != nil {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, err)
	}
	if res.Preserved != "" {
		metrics.RecordConflictPreserved()
		e.logger.Warn().
			Str(xglog.FieldEvent, "sync.conflict_preserved").
			Str(xglog.FieldEntity, entity).
			Str(xglog.FieldVersion, res.Preserved).
			Str("expected", opts.ExpectVersion).
			Msg("remote changed since last sync, kept it as a conflict version")
	}
	published = true

	if err := e.meta.UpdateSyncedAt(ctx, entity, now, manifest.Version); err != nil {
		return ports.Wrap("upload", entity, ports.ErrRemoteUploadFailure, err)
	}
	e.markKnown(entity, manifest.Version)

	span.SetAttributes(telemetry.EntityAttributes("", "", manifest.Version)...)
	e.logger.Info().
		Str(xglog.FieldEvent, "sync.uploaded").
		Str(xglog.FieldEntity, entity).
		Str(xglog.FieldVersion, manifest.Version).
		Msg("upload complete")
	e.publish(SyncEvent{Kind: EventUploaded, Entity: entity, Version: manifest.Version})
	return nil
}

// UploadInBackground uploads on a tracked goroutine. Failures go to the
// pending failure list instead of the caller.
func (e *Engine) UploadInBackground(entity string) {
	e.goBackground(func(ctx context.Context) {
		if err := e.Upload(ctx, entity); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.recordFailure(entity, OpUpload, err, func(ctx context.Context) error {
				return e.Upload(ctx, entity)
			})
		}
	})
}
