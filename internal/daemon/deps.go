// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"
	"time"

	"github.com/ManuGH/savesync/internal/config"
	"github.com/rs/zerolog"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// Config is the resolved application configuration
	Config config.AppConfig

	// APIHandler is the HTTP handler for the control API
	APIHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	// Config validation is done by config.Loader
	return nil
}

// ServerConfig holds the HTTP server settings of the Manager.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// ServerConfigFrom extracts the server settings from cfg.
func ServerConfigFrom(cfg config.AppConfig) ServerConfig {
	return ServerConfig{
		ListenAddr:        cfg.API.Listen,
		ReadHeaderTimeout: cfg.API.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.API.ShutdownTimeout,
	}
}
