// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
	"github.com/ManuGH/savesync/internal/telemetry"
)

// Scope selects where Delete removes an entity.
type Scope string

const (
	ScopeLocalOnly  Scope = "local"
	ScopeEverywhere Scope = "everywhere"
)

// ParseScope validates a scope name. Empty means local only.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case "":
		return ScopeLocalOnly, nil
	case ScopeLocalOnly, ScopeEverywhere:
		return sc, nil
	}
	return "", fmt.Errorf("unknown delete scope %q", s)
}

// GatePolicy decides what Delete does when an upload is still in
// flight after DeleteGateTimeout.
type GatePolicy string

const (
	GatePolicyProceed GatePolicy = "proceed"
	GatePolicyFail    GatePolicy = "fail"
)

// Delete removes entity after any in-flight upload of it has finished.
// ScopeEverywhere also removes the remote copy best-effort; the local removal
// decides the result.
func (e *Engine) Delete(ctx context.Context, entity string, scope Scope) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "sync.delete", trace.WithAttributes(
		append(telemetry.EntityAttributes(entity, "", ""), attribute.String(telemetry.SyncScopeKey, string(scope)))...))
	defer func() {
		telemetry.EndSpan(span, err)
		e.recordOp("delete", start, err)
	}()

	logger := e.logger.With().Str(xglog.FieldEntity, entity).Str(xglog.FieldScope, string(scope)).Logger()

	if scope != ScopeLocalOnly && scope != ScopeEverywhere {
		return fmt.Errorf("delete %q: unknown scope %q", entity, scope)
	}
	// An upload finishing after the local removal would write the metadata
	// back, so both scopes wait for it.
	if err := e.awaitGate(ctx, entity); err != nil {
		return err
	}
	if scope == ScopeEverywhere {
		e.deleteRemote(ctx, entity)
	}

	if err := e.local.Delete(entity); err != nil {
		return ports.Wrap("delete", entity, nil, err)
	}
	if err := e.meta.Delete(ctx, entity); err != nil {
		return ports.Wrap("delete", entity, nil, err)
	}
	e.dropFailures(entity)
	e.forget(entity)

	logger.Info().Str(xglog.FieldEvent, "sync.deleted").Msg("entity deleted")
	e.publish(SyncEvent{Kind: EventDeleted, Entity: entity})
	return nil
}

func (e *Engine) awaitGate(ctx context.Context, entity string) error {
	start := time.Now()
	cleared, err := e.gate.wait(ctx, entity, e.cfg.DeleteGateTimeout)
	switch {
	case err != nil:
		metrics.ObserveUploadGateWait("canceled", time.Since(start).Seconds())
		return err
	case cleared:
		metrics.ObserveUploadGateWait("cleared", time.Since(start).Seconds())
		return nil
	}

	metrics.ObserveUploadGateWait("timeout", time.Since(start).Seconds())
	e.logger.Warn().
		Str(xglog.FieldEvent, "sync.gate_timeout").
		Str(xglog.FieldEntity, entity).
		Str(xglog.FieldPolicy, string(e.cfg.GatePolicy)).
		Dur("waited", time.Since(start)).
		Msg("upload still in flight after gate timeout")
	if e.cfg.GatePolicy == GatePolicyFail {
		return ports.Wrap("delete", entity, nil, ports.ErrUploadInProgress)
	}
	return nil
}

// deleteRemote removes the remote bundle and its conflict versions. Failures
// are logged and counted, never returned.
func (e *Engine) deleteRemote(ctx context.Context, entity string) {
	if !e.Available() {
		e.logger.Warn().Str(xglog.FieldEntity, entity).Msg("remote unavailable, skipping remote delete")
		metrics.RecordSyncOp("delete_remote", "skipped", 0)
		return
	}
	start := time.Now()
	err := e.remote.Remove(ctx, entity)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err == nil {
		err = e.remote.DiscardConflicts(ctx, entity)
	}
	e.recordOp("delete_remote", start, err)
	if err != nil {
		e.logger.Warn().
			Err(ports.Wrap("delete", entity, ports.ErrRemoteDeleteFailure, err)).
			Str(xglog.FieldEvent, "sync.remote_delete_failed").
			Str(xglog.FieldEntity, entity).
			Msg("remote delete failed, continuing with local delete")
	}
}
