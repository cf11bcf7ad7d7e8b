// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/savesync/internal/config"
	"github.com/ManuGH/savesync/internal/domain/session/store"
	"github.com/ManuGH/savesync/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Directory permissions
	if err := ensureWritableDir(logger, "data directory", cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if cfg.Sync.Enabled {
		if err := ensureWritableDir(logger, "remote root", cfg.Remote.Root); err != nil {
			return fmt.Errorf("remote root check failed: %w", err)
		}
	}

	// 2. Listen address
	if err := checkListenAddr(logger, cfg.API.Listen); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// 3. Persistence warnings
	if strings.EqualFold(cfg.Metadata.Backend, store.BackendMemory) {
		logger.Warn().
			Str("metadata_backend", cfg.Metadata.Backend).
			Msg("metadata is kept in memory; sync history is lost on restart")
	}
	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; local saves may be lost on reboot")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func ensureWritableDir(logger zerolog.Logger, what, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := checkWritable(path); err != nil {
		return err
	}
	logger.Info().Str("path", path).Msgf("✓ %s is writable", what)
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ API listen address is valid")
	return nil
}
