// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_sync_operations_total",
		Help: "Remote sync operations by operation and result",
	}, []string{"op", "result"})

	syncOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savesync_sync_operation_duration_seconds",
		Help:    "Duration of remote sync operations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
	}, []string{"op"})

	uploadGateSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savesync_upload_gate_entities",
		Help: "Entities currently held in the upload gate",
	})

	uploadGateWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savesync_upload_gate_wait_seconds",
		Help:    "Time deletes spent waiting for the upload gate",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"outcome"})

	pendingFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savesync_sync_pending_failures",
		Help: "Sync failures awaiting retry or dismissal",
	})

	discoveryQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_discovery_downloads_queued_total",
		Help: "Background downloads queued by discovery, by remote entry state",
	}, []string{"state"})

	conflictsPreserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "savesync_conflicts_preserved_total",
		Help: "Remote bundles kept as conflict versions by an upload",
	})

	remoteAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savesync_remote_available",
		Help: "Whether the remote store is available (1) or not (0)",
	})
)

// RecordSyncOp counts a sync operation outcome and its duration.
func RecordSyncOp(op, result string, seconds float64) {
	syncOps.WithLabelValues(op, result).Inc()
	syncOpDuration.WithLabelValues(op).Observe(seconds)
}

// SetUploadGateSize reports the number of entities being uploaded.
func SetUploadGateSize(n int) {
	uploadGateSize.Set(float64(n))
}

// ObserveUploadGateWait records how long a delete waited (outcome=cleared|timeout|canceled).
func ObserveUploadGateWait(outcome string, seconds float64) {
	uploadGateWait.WithLabelValues(outcome).Observe(seconds)
}

// SetPendingFailures reports the size of the retry list.
func SetPendingFailures(n int) {
	pendingFailures.Set(float64(n))
}

// IncDiscoveryQueued counts a discovery-triggered download.
func IncDiscoveryQueued(state string) {
	discoveryQueued.WithLabelValues(state).Inc()
}

// SetRemoteAvailable reports the cached availability flag.
func SetRemoteAvailable(ok bool) {
	if ok {
		remoteAvailable.Set(1)
		return
	}
	remoteAvailable.Set(0)
}

// RecordConflictPreserved counts one remote version kept as a conflict.
func RecordConflictPreserved() {
	conflictsPreserved.Inc()
}
