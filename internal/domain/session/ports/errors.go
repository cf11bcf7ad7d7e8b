// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"errors"
	"fmt"
)

// Error classes. Callers classify with errors.Is; concrete failures wrap one of these.
var (
	ErrInvalidTransition     = errors.New("invalid lifecycle transition")
	ErrEngineLoadFailure     = errors.New("engine load failure")
	ErrRemoteUnavailable     = errors.New("remote store unavailable")
	ErrRemoteUploadFailure   = errors.New("remote upload failure")
	ErrRemoteDownloadFailure = errors.New("remote download failure")
	ErrRemoteDeleteFailure   = errors.New("remote delete failure")
	ErrConflictUnresolved    = errors.New("conflict unresolved")
)

var (
	ErrDownloadTimeout  = fmt.Errorf("%w: timed out waiting for remote materialization", ErrRemoteDownloadFailure)
	ErrEntityNotFound   = fmt.Errorf("%w: entity not found", ErrRemoteDownloadFailure)
	ErrNoIdentity       = fmt.Errorf("%w: no remote identity", ErrRemoteUnavailable)
	ErrUploadInProgress = errors.New("upload in progress")
	ErrNoActiveEntity   = errors.New("no active entity")
	ErrExitInProgress   = errors.New("exit in progress, request queued")
	ErrNoSaves          = errors.New("no saves available")
	ErrLocalNotFound    = errors.New("local entity not found")
	ErrInvalidName      = errors.New("invalid entity name")
)

// OpError records the operation and entity a failure belongs to.
type OpError struct {
	Op     string
	Entity string
	Err    error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Entity == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Entity, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap returns an *OpError whose chain contains both class and cause.
// A nil cause yields nil.
func Wrap(op, entity string, class, cause error) error {
	if cause == nil {
		return nil
	}
	if class == nil || errors.Is(cause, class) {
		return &OpError{Op: op, Entity: entity, Err: cause}
	}
	return &OpError{Op: op, Entity: entity, Err: fmt.Errorf("%w: %w", class, cause)}
}
