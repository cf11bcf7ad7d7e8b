// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/telemetry"
)

// Policy chooses how a conflict is resolved. Resolution is never automatic.
type Policy string

const (
	KeepLocal  Policy = "keep_local"
	KeepRemote Policy = "keep_remote"
	KeepBoth   Policy = "keep_both"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case KeepLocal, KeepRemote, KeepBoth:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown policy %q", ports.ErrConflictUnresolved, s)
}

// ConflictRecord pairs the local metadata with one unresolved remote version.
type ConflictRecord struct {
	Entity string
	Local  *model.EntitySaveMetadata
	Remote ports.RemoteVersion
}

// conflictTimeLayout is used for keep-both copy names.
const conflictTimeLayout = "20060102-150405"

// DetectConflicts lists the unresolved remote versions of entity.
func (e *Engine) DetectConflicts(ctx context.Context, entity string) ([]ConflictRecord, error) {
	if !e.Available() {
		return nil, e.unavailable("detect_conflicts", entity)
	}
	versions, err := e.remote.ConflictVersions(ctx, entity)
	if err != nil {
		return nil, ports.Wrap("detect_conflicts", entity, ports.ErrConflictUnresolved, err)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	meta, err := e.meta.Load(ctx, entity)
	if err != nil {
		return nil, err
	}

	out := make([]ConflictRecord, 0, len(versions))
	for _, v := range versions {
		rec := ConflictRecord{Entity: entity, Remote: v}
		if meta != nil {
			snap := meta.Clone()
			rec.Local = &snap
		}
		out = append(out, rec)
	}
	return out, nil
}

// ResolveConflict applies policy to every unresolved version of entity and
// discards the versions afterwards. For KeepBoth it returns the names of the
// entities created from the conflict versions.
func (e *Engine) ResolveConflict(ctx context.Context, entity string, policy Policy) (created []string, err error) {
	ctx, span := e.tracer.Start(ctx, "sync.resolve_conflict", trace.WithAttributes(
		append(telemetry.EntityAttributes(entity, "", ""), attribute.String(telemetry.SyncPolicyKey, string(policy)))...))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, ports.Wrap("resolve_conflict", entity, nil, err)
	}
	if !e.Available() {
		return nil, e.unavailable("resolve_conflict", entity)
	}
	versions, err := e.remote.ConflictVersions(ctx, entity)
	if err != nil {
		return nil, ports.Wrap("resolve_conflict", entity, ports.ErrConflictUnresolved, err)
	}
	if len(versions) == 0 {
		return nil, nil
	}

	switch policy {
	case KeepLocal:
		if !e.local.Exists(entity) {
			return nil, ports.Wrap("resolve_conflict", entity, ports.ErrConflictUnresolved, ports.ErrLocalNotFound)
		}
		if err := e.upload(ctx, entity, true); err != nil {
			return nil, err
		}
	case KeepRemote:
		if err := e.keepRemote(ctx, entity, versions); err != nil {
			return nil, err
		}
	case KeepBoth:
		created, err = e.keepBoth(ctx, entity, versions)
		if err != nil {
			return created, err
		}
	}

	if err := e.remote.DiscardConflicts(ctx, entity); err != nil {
		return created, ports.Wrap("resolve_conflict", entity, ports.ErrConflictUnresolved, err)
	}
	e.logger.Info().
		Str(xglog.FieldEvent, "sync.conflict_resolved").
		Str(xglog.FieldEntity, entity).
		Str(xglog.FieldPolicy, string(policy)).
		Int("versions", len(versions)).
		Strs("created", created).
		Msg("conflict resolved")
	e.publish(SyncEvent{Kind: EventResolved, Entity: entity})
	return created, nil
}

// keepRemote overwrites the local bundle with the current remote version, or
// with the newest conflict version when no current version exists.
func (e *Engine) keepRemote(ctx context.Context, entity string, versions []ports.RemoteVersion) error {
	_, err := e.remote.Stat(ctx, entity)
	if err == nil {
		_, err = e.Download(ctx, entity)
		return err
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return ports.Wrap("resolve_conflict", entity, ports.ErrRemoteDownloadFailure, err)
	}

	newest := versions[len(versions)-1]
	if err := e.materializeVersion(ctx, entity, newest, entity); err != nil {
		return err
	}
	// Republish so the remote has a current version again.
	return e.upload(ctx, entity, true)
}

func (e *Engine) keepBoth(ctx context.Context, entity string, versions []ports.RemoteVersion) ([]string, error) {
	var created []string
	taken := make(map[string]struct{})
	for _, v := range versions {
		name := e.keepBothName(ctx, entity, v, taken)
		taken[name] = struct{}{}
		if err := e.materializeVersion(ctx, entity, v, name); err != nil {
			return created, err
		}
		if err := e.upload(ctx, name, false); err != nil {
			return created, err
		}
		created = append(created, name)
	}
	return created, nil
}

// materializeVersion copies a conflict version into the local store as target.
func (e *Engine) materializeVersion(ctx context.Context, entity string, v ports.RemoteVersion, target string) error {
	staged, err := e.local.StagingDir()
	if err != nil {
		return ports.Wrap("resolve_conflict", entity, ports.ErrRemoteDownloadFailure, err)
	}
	if err := e.remote.CopyVersionOut(ctx, entity, v.ID, staged); err != nil {
		_ = os.RemoveAll(staged)
		return ports.Wrap("resolve_conflict", entity, ports.ErrRemoteDownloadFailure, err)
	}
	if err := e.local.Replace(target, staged); err != nil {
		_ = os.RemoveAll(staged)
		return ports.Wrap("resolve_conflict", entity, ports.ErrRemoteDownloadFailure, err)
	}

	savedAt := v.Manifest.SavedAt
	if savedAt.IsZero() {
		savedAt = e.now()
	}
	now := e.now()
	return e.meta.Save(ctx, model.EntitySaveMetadata{
		Name:          target,
		LastSavedAt:   savedAt.UTC(),
		DownloadedAt:  &now,
		RemoteVersion: v.Manifest.Version,
	})
}

// keepBothName derives "<entity> (conflict YYYYMMDD-HHMMSS)" from the version's
// publish time in UTC and appends " 2", " 3", ... until the name is free.
func (e *Engine) keepBothName(ctx context.Context, entity string, v ports.RemoteVersion, taken map[string]struct{}) string {
	ts := v.Manifest.PublishedAt
	if ts.IsZero() {
		ts = e.now()
	}
	base := KeepBothName(entity, ts)
	candidate := base
	for n := 2; e.nameTaken(ctx, candidate, taken); n++ {
		candidate = fmt.Sprintf("%s %d", base, n)
	}
	return candidate
}

// KeepBothName formats the base name of a keep-both copy.
func KeepBothName(entity string, publishedAt time.Time) string {
	return fmt.Sprintf("%s (conflict %s)", entity, publishedAt.UTC().Format(conflictTimeLayout))
}

func (e *Engine) nameTaken(ctx context.Context, name string, taken map[string]struct{}) bool {
	if _, ok := taken[name]; ok {
		return true
	}
	if e.local.Exists(name) {
		return true
	}
	_, err := e.remote.Stat(ctx, name)
	return err == nil
}
