// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

// Engine modes.
const (
	EngineModeStub = "stub"
)

// Tracing exporters.
const (
	ExporterGRPC = "grpc"
	ExporterHTTP = "http"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	// DataDir holds local bundles and the metadata store.
	DataDir string `yaml:"dataDir"`

	Metadata  MetadataConfig  `yaml:"metadata"`
	Remote    RemoteConfig    `yaml:"remote"`
	Sync      SyncConfig      `yaml:"sync"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Engine    EngineConfig    `yaml:"engine"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type MetadataConfig struct {
	// Backend is one of file, sqlite, badger, memory.
	Backend string `yaml:"backend"`
}

// RemoteConfig points at the shared-folder remote store.
type RemoteConfig struct {
	Root string `yaml:"root"`
	// MaterializeDelay simulates on-demand fetch latency for placeholders.
	MaterializeDelay time.Duration `yaml:"materializeDelay"`
}

type SyncConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Device               string        `yaml:"device"`
	BundlePattern        string        `yaml:"bundlePattern"`
	DownloadTimeout      time.Duration `yaml:"downloadTimeout"`
	PollInterval         time.Duration `yaml:"pollInterval"`
	DeleteGateTimeout    time.Duration `yaml:"deleteGateTimeout"`
	DeleteGatePolicy     string        `yaml:"deleteGatePolicy"`
	DiscoveryInterval    time.Duration `yaml:"discoveryInterval"`
	DiscoveryMinInterval time.Duration `yaml:"discoveryMinInterval"`
	AvailabilityPoll     time.Duration `yaml:"availabilityPoll"`
	AvailabilityWait     time.Duration `yaml:"availabilityWait"`
}

type LifecycleConfig struct {
	LoadingTimeout time.Duration `yaml:"loadingTimeout"`
	ExitingTimeout time.Duration `yaml:"exitingTimeout"`
}

type EngineConfig struct {
	Mode      string        `yaml:"mode"`
	StopDelay time.Duration `yaml:"stopDelay"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is the number of requests per minute allowed per client IP. 0 disables it.
	RateLimit         int           `yaml:"rateLimit"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// SavesDir is where the local store keeps entity bundles.
func (c AppConfig) SavesDir() string {
	return filepath.Join(c.DataDir, "saves")
}
