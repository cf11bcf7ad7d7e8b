// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
)

// OpKind is the sync operation a failure belongs to.
type OpKind string

const (
	OpUpload   OpKind = "upload"
	OpDownload OpKind = "download"
)

// ErrFailureNotFound is returned for unknown failure IDs.
var ErrFailureNotFound = errors.New("sync failure not found")

// SyncFailure is a failed background operation awaiting retry or dismissal.
type SyncFailure struct {
	ID       string
	Entity   string
	Op       OpKind
	Err      error
	At       time.Time
	Attempts int

	retry func(ctx context.Context) error
}

// recordFailure appends a failure, or refreshes the existing one for the
// same entity and operation.
func (e *Engine) recordFailure(entity string, op OpKind, err error, retry func(ctx context.Context) error) {
	e.failMu.Lock()
	var f *SyncFailure
	for _, existing := range e.failures {
		if existing.Entity == entity && existing.Op == op {
			f = existing
			break
		}
	}
	if f == nil {
		f = &SyncFailure{ID: uuid.NewString(), Entity: entity, Op: op, retry: retry}
		e.failures = append(e.failures, f)
	}
	f.Err = err
	f.At = e.now()
	f.Attempts++
	n := len(e.failures)
	id := f.ID
	e.failMu.Unlock()

	metrics.SetPendingFailures(n)
	e.logger.Warn().Err(err).
		Str(xglog.FieldEvent, "sync.failure_recorded").
		Str(xglog.FieldEntity, entity).
		Str(xglog.FieldOp, string(op)).
		Str(xglog.FieldFailureID, id).
		Msg("background sync failed")
	e.publish(SyncEvent{Kind: EventFailed, Entity: entity, Op: op, Error: err.Error()})
}

// Failures returns a snapshot of the pending list, oldest first.
func (e *Engine) Failures() []SyncFailure {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	out := make([]SyncFailure, 0, len(e.failures))
	for _, f := range e.failures {
		out = append(out, *f)
	}
	return out
}

func (e *Engine) findFailure(id string) *SyncFailure {
	for _, f := range e.failures {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (e *Engine) removeFailureLocked(id string) bool {
	for i, f := range e.failures {
		if f.ID == id {
			e.failures = append(e.failures[:i], e.failures[i+1:]...)
			metrics.SetPendingFailures(len(e.failures))
			return true
		}
	}
	return false
}

// Retry reruns a failed operation and removes it from the list on success.
func (e *Engine) Retry(ctx context.Context, id string) error {
	e.failMu.Lock()
	f := e.findFailure(id)
	var retry func(context.Context) error
	if f != nil {
		retry = f.retry
	}
	e.failMu.Unlock()
	if f == nil {
		return fmt.Errorf("%w: %s", ErrFailureNotFound, id)
	}

	err := retry(ctx)

	e.failMu.Lock()
	defer e.failMu.Unlock()
	if err == nil {
		e.removeFailureLocked(id)
		return nil
	}
	// The entry may have been dismissed while the retry ran.
	if f := e.findFailure(id); f != nil {
		f.Err = err
		f.At = e.now()
		f.Attempts++
	}
	return err
}

// Dismiss drops a failure without retrying it.
func (e *Engine) Dismiss(id string) error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	if !e.removeFailureLocked(id) {
		return fmt.Errorf("%w: %s", ErrFailureNotFound, id)
	}
	return nil
}

// RetryAll retries every pending failure and joins the errors of those that
// failed again.
func (e *Engine) RetryAll(ctx context.Context) error {
	var errs []error
	for _, f := range e.Failures() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Retry(ctx, f.ID); err != nil && !errors.Is(err, ErrFailureNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) dropFailures(entity string) {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	kept := e.failures[:0]
	for _, f := range e.failures {
		if f.Entity != entity {
			kept = append(kept, f)
		}
	}
	e.failures = kept
	metrics.SetPendingFailures(len(e.failures))
}
