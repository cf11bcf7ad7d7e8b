// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import "time"

// EventKind classifies sync events.
type EventKind string

const (
	EventDiscovered   EventKind = "discovered"
	EventDownloaded   EventKind = "downloaded"
	EventUploaded     EventKind = "uploaded"
	EventFailed       EventKind = "failed"
	EventDeleted      EventKind = "deleted"
	EventResolved     EventKind = "resolved"
	EventAvailability EventKind = "availability"
)

// SyncEvent is published for every completed sync step.
type SyncEvent struct {
	Kind      EventKind `json:"kind"`
	Entity    string    `json:"entity,omitempty"`
	Version   string    `json:"version,omitempty"`
	Op        OpKind    `json:"op,omitempty"`
	Error     string    `json:"error,omitempty"`
	Available bool      `json:"available,omitempty"`
	At        time.Time `json:"at"`
}
