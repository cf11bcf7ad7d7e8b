// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/savesync/internal/log"
)

// EnvPrefix is shared by every environment key the loader reads.
const EnvPrefix = "SAVESYNC_"

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// 1. Set defaults
	cfg := Defaults()

	// 2. Load from file (if provided)
	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// 3. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)
	l.warnUnknownEnvKeys()

	// SAFETY: Ensure DataDir is absolute so derived paths do not depend on the cwd
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Remote.Root == "" {
		cfg.Remote.Root = filepath.Join(cfg.DataDir, "remote")
	}

	cfg.Version = l.version

	// 4. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingContent
	}

	logger := log.WithComponent("config")
	logger.Info().
		Str(log.FieldEvent, "config.file_loaded").
		Str(log.FieldPath, path).
		Msg("configuration file loaded")
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("SAVESYNC_DATA_DIR", cfg.DataDir)
	cfg.Metadata.Backend = l.envString("SAVESYNC_METADATA_BACKEND", cfg.Metadata.Backend)

	cfg.Remote.Root = l.envString("SAVESYNC_REMOTE_ROOT", cfg.Remote.Root)
	cfg.Remote.MaterializeDelay = l.envDuration("SAVESYNC_REMOTE_MATERIALIZE_DELAY", cfg.Remote.MaterializeDelay)

	cfg.Sync.Enabled = l.envBool("SAVESYNC_SYNC_ENABLED", cfg.Sync.Enabled)
	cfg.Sync.Device = l.envString("SAVESYNC_SYNC_DEVICE", cfg.Sync.Device)
	cfg.Sync.BundlePattern = l.envString("SAVESYNC_SYNC_BUNDLE_PATTERN", cfg.Sync.BundlePattern)
	cfg.Sync.DownloadTimeout = l.envDuration("SAVESYNC_SYNC_DOWNLOAD_TIMEOUT", cfg.Sync.DownloadTimeout)
	cfg.Sync.PollInterval = l.envDuration("SAVESYNC_SYNC_POLL_INTERVAL", cfg.Sync.PollInterval)
	cfg.Sync.DeleteGateTimeout = l.envDuration("SAVESYNC_SYNC_DELETE_GATE_TIMEOUT", cfg.Sync.DeleteGateTimeout)
	cfg.Sync.DeleteGatePolicy = l.envString("SAVESYNC_SYNC_DELETE_GATE_POLICY", cfg.Sync.DeleteGatePolicy)
	cfg.Sync.DiscoveryInterval = l.envDuration("SAVESYNC_SYNC_DISCOVERY_INTERVAL", cfg.Sync.DiscoveryInterval)
	cfg.Sync.DiscoveryMinInterval = l.envDuration("SAVESYNC_SYNC_DISCOVERY_MIN_INTERVAL", cfg.Sync.DiscoveryMinInterval)
	cfg.Sync.AvailabilityPoll = l.envDuration("SAVESYNC_SYNC_AVAILABILITY_POLL", cfg.Sync.AvailabilityPoll)
	cfg.Sync.AvailabilityWait = l.envDuration("SAVESYNC_SYNC_AVAILABILITY_WAIT", cfg.Sync.AvailabilityWait)

	cfg.Lifecycle.LoadingTimeout = l.envDuration("SAVESYNC_LOADING_TIMEOUT", cfg.Lifecycle.LoadingTimeout)
	cfg.Lifecycle.ExitingTimeout = l.envDuration("SAVESYNC_EXITING_TIMEOUT", cfg.Lifecycle.ExitingTimeout)

	cfg.Engine.Mode = l.envString("SAVESYNC_ENGINE_MODE", cfg.Engine.Mode)
	cfg.Engine.StopDelay = l.envDuration("SAVESYNC_ENGINE_STOP_DELAY", cfg.Engine.StopDelay)

	cfg.API.Listen = l.envString("SAVESYNC_LISTEN", cfg.API.Listen)
	cfg.API.RateLimit = l.envInt("SAVESYNC_API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.ShutdownTimeout = l.envDuration("SAVESYNC_API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Log.Level = l.envString("SAVESYNC_LOG_LEVEL", cfg.Log.Level)

	cfg.Telemetry.Enabled = l.envBool("SAVESYNC_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("SAVESYNC_TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("SAVESYNC_TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("SAVESYNC_TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("SAVESYNC_ENVIRONMENT", cfg.Telemetry.Environment)
}

// UnknownEnvKeys lists SAVESYNC_* variables in the environment that no
// setting consumed. Call after Load.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (l *Loader) warnUnknownEnvKeys() {
	unknown := l.UnknownEnvKeys()
	if len(unknown) == 0 {
		return
	}
	logger := log.WithComponent("config")
	logger.Warn().
		Str(log.FieldEvent, "config.unknown_env").
		Strs("keys", unknown).
		Msg("ignoring unknown SAVESYNC_* environment variables")
}
