// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/lifecycle"
	"github.com/ManuGH/savesync/internal/domain/session/store"
)

const (
	DefaultDataDir          = "/var/lib/savesync"
	DefaultListen           = ":8088"
	DefaultRateLimit        = 120
	DefaultAvailabilityWait = 5 * time.Second
)

// Defaults returns the configuration used when neither file nor ENV say otherwise.
func Defaults() AppConfig {
	device, _ := os.Hostname()
	return AppConfig{
		DataDir:  DefaultDataDir,
		Metadata: MetadataConfig{Backend: store.BackendFile},
		Sync: SyncConfig{
			Enabled:              true,
			Device:               device,
			BundlePattern:        cloudsync.DefaultBundlePattern,
			DownloadTimeout:      cloudsync.DefaultDownloadTimeout,
			PollInterval:         cloudsync.DefaultPollInterval,
			DeleteGateTimeout:    cloudsync.DefaultDeleteGateTimeout,
			DeleteGatePolicy:     string(cloudsync.GatePolicyProceed),
			DiscoveryInterval:    cloudsync.DefaultDiscoveryInterval,
			DiscoveryMinInterval: cloudsync.DefaultDiscoveryMinInterval,
			AvailabilityPoll:     cloudsync.DefaultAvailabilityPoll,
			AvailabilityWait:     DefaultAvailabilityWait,
		},
		Lifecycle: LifecycleConfig{
			LoadingTimeout: lifecycle.DefaultLoadingTimeout,
			ExitingTimeout: lifecycle.DefaultExitingTimeout,
		},
		Engine: EngineConfig{Mode: EngineModeStub, StopDelay: 200 * time.Millisecond},
		API: APIConfig{
			Listen:            DefaultListen,
			RateLimit:         DefaultRateLimit,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Service: "savesync"},
		Telemetry: TelemetryConfig{
			Exporter:     ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
