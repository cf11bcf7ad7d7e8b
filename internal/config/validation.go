// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/store"
	"github.com/ManuGH/savesync/internal/validate"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks every section and reports all problems in one error.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir)
	v.OneOf("Metadata.Backend", cfg.Metadata.Backend,
		[]string{store.BackendFile, store.BackendSqlite, store.BackendBadger, store.BackendMemory})

	if cfg.Sync.Enabled {
		v.Directory("Remote.Root", cfg.Remote.Root)
		v.NotEmpty("Sync.Device", cfg.Sync.Device)
		v.Regexp("Sync.BundlePattern", cfg.Sync.BundlePattern)
		v.DurationRange("Sync.DownloadTimeout", cfg.Sync.DownloadTimeout, time.Second, time.Hour)
		v.DurationRange("Sync.PollInterval", cfg.Sync.PollInterval, 10*time.Millisecond, cfg.Sync.DownloadTimeout)
		v.DurationRange("Sync.DeleteGateTimeout", cfg.Sync.DeleteGateTimeout, 0, time.Hour)
		v.OneOf("Sync.DeleteGatePolicy", cfg.Sync.DeleteGatePolicy,
			[]string{string(cloudsync.GatePolicyProceed), string(cloudsync.GatePolicyFail)})
		v.DurationRange("Sync.DiscoveryInterval", cfg.Sync.DiscoveryInterval, time.Second, 24*time.Hour)
		v.DurationRange("Sync.DiscoveryMinInterval", cfg.Sync.DiscoveryMinInterval, 0, cfg.Sync.DiscoveryInterval)
		v.DurationRange("Sync.AvailabilityPoll", cfg.Sync.AvailabilityPoll, 10*time.Millisecond, time.Minute)
		v.DurationRange("Sync.AvailabilityWait", cfg.Sync.AvailabilityWait, 0, 10*time.Minute)
		v.DurationRange("Remote.MaterializeDelay", cfg.Remote.MaterializeDelay, 0, time.Hour)
	}

	v.DurationRange("Lifecycle.LoadingTimeout", cfg.Lifecycle.LoadingTimeout, time.Second, 10*time.Minute)
	v.DurationRange("Lifecycle.ExitingTimeout", cfg.Lifecycle.ExitingTimeout, time.Second, 10*time.Minute)

	v.OneOf("Engine.Mode", cfg.Engine.Mode, []string{EngineModeStub})
	v.DurationRange("Engine.StopDelay", cfg.Engine.StopDelay, 0, cfg.Lifecycle.ExitingTimeout)

	v.ListenAddr("API.Listen", cfg.API.Listen)
	v.Range("API.RateLimit", cfg.API.RateLimit, 0, 100000)
	v.DurationRange("API.ShutdownTimeout", cfg.API.ShutdownTimeout, 0, time.Minute)

	v.OneOf("Log.Level", strings.ToLower(cfg.Log.Level), logLevels)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{ExporterGRPC, ExporterHTTP})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
