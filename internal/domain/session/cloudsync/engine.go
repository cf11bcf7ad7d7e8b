// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cloudsync keeps local save bundles and the shared remote store in
// step: availability, discovery, upload/download, conflicts and deletion.
//
// Ordering guarantees per entity:
//   - an upload enters the upload gate before it touches the remote and leaves
//     it only after publish finished or failed;
//   - delete-everywhere waits (bounded) for the gate before removing remotely;
//   - SyncedAt and DownloadedAt are written only after the remote step succeeded.
package cloudsync

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/events"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
	"github.com/ManuGH/savesync/internal/telemetry"
)

const (
	DefaultDownloadTimeout      = 60 * time.Second
	DefaultPollInterval         = 500 * time.Millisecond
	DefaultDeleteGateTimeout    = 30 * time.Second
	DefaultDiscoveryInterval    = 5 * time.Minute
	DefaultDiscoveryMinInterval = 2 * time.Second
	DefaultAvailabilityPoll     = 250 * time.Millisecond
	DefaultBundlePattern        = `^[^.].*$`
)

// Config tunes the engine. Zero values fall back to the defaults.
type Config struct {
	Device            string
	BundlePattern     string
	DownloadTimeout   time.Duration
	PollInterval      time.Duration
	DeleteGateTimeout time.Duration
	GatePolicy        GatePolicy
	// DiscoveryInterval is the safety rescan period of RunDiscovery.
	DiscoveryInterval time.Duration
	// DiscoveryMinInterval throttles change-driven rescans.
	DiscoveryMinInterval time.Duration
	AvailabilityPoll     time.Duration
	Now                  func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Device == "" {
		c.Device = "unknown-device"
	}
	if c.BundlePattern == "" {
		c.BundlePattern = DefaultBundlePattern
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DeleteGateTimeout <= 0 {
		c.DeleteGateTimeout = DefaultDeleteGateTimeout
	}
	if c.GatePolicy == "" {
		c.GatePolicy = GatePolicyProceed
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if c.DiscoveryMinInterval <= 0 {
		c.DiscoveryMinInterval = DefaultDiscoveryMinInterval
	}
	if c.AvailabilityPoll <= 0 {
		c.AvailabilityPoll = DefaultAvailabilityPoll
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine is the sync engine. All methods are safe for concurrent use.
type Engine struct {
	cfg     Config
	pattern *regexp.Regexp
	remote  ports.RemoteStore
	local   ports.LocalStore
	meta    ports.MetadataStore
	logger  zerolog.Logger
	tracer  trace.Tracer
	events  *events.Broadcaster[SyncEvent]

	availMu   sync.RWMutex
	available bool
	identity  string

	gate      *uploadGate
	uploads   entityLocks
	downloads singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*downloadFlight

	knownMu sync.Mutex
	known   map[string]struct{}

	failMu   sync.Mutex
	failures []*SyncFailure

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgMu     sync.Mutex
	bgClosed bool
	bg       sync.WaitGroup
}

// New wires an engine. It starts unavailable; call Start to probe the remote.
func New(cfg Config, remote ports.RemoteStore, local ports.LocalStore, meta ports.MetadataStore) (*Engine, error) {
	cfg.applyDefaults()
	switch cfg.GatePolicy {
	case GatePolicyProceed, GatePolicyFail:
	default:
		return nil, fmt.Errorf("cloudsync: unknown gate policy %q", cfg.GatePolicy)
	}
	pattern, err := regexp.Compile(cfg.BundlePattern)
	if err != nil {
		return nil, fmt.Errorf("cloudsync: bundle pattern: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		pattern:  pattern,
		remote:   remote,
		local:    local,
		meta:     meta,
		logger:   xglog.WithComponent("cloudsync"),
		tracer:   telemetry.Tracer("savesync/cloudsync"),
		events:   events.NewBroadcaster[SyncEvent]("sync"),
		gate:     newUploadGate(),
		known:    make(map[string]struct{}),
		flights:  make(map[string]*downloadFlight),
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}
	metrics.SetRemoteAvailable(false)
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

// Start probes the remote identity once. A missing identity keeps the engine
// unavailable until AccountChanged.
func (e *Engine) Start(ctx context.Context) bool {
	return e.probe(ctx)
}

// AccountChanged re-probes the identity after a sign-in or sign-out. A
// different account invalidates everything discovery has seen so far.
func (e *Engine) AccountChanged(ctx context.Context) bool {
	e.availMu.RLock()
	before := e.identity
	e.availMu.RUnlock()

	ok := e.probe(ctx)

	e.availMu.RLock()
	after := e.identity
	e.availMu.RUnlock()
	if before != after {
		e.knownMu.Lock()
		e.known = make(map[string]struct{})
		e.knownMu.Unlock()
	}
	return ok
}

func (e *Engine) probe(ctx context.Context) bool {
	id, err := e.remote.Identity(ctx)
	ok := err == nil

	e.availMu.Lock()
	changed := e.available != ok
	e.available = ok
	e.identity = id
	e.availMu.Unlock()

	metrics.SetRemoteAvailable(ok)
	if err != nil {
		e.logger.Info().Err(err).Str(xglog.FieldEvent, "sync.unavailable").Msg("remote store unavailable")
	} else {
		e.logger.Info().Str(xglog.FieldEvent, "sync.available").Msg("remote store available")
	}
	if changed {
		e.publish(SyncEvent{Kind: EventAvailability, Available: ok})
	}
	return ok
}

// Available reports the cached availability flag.
func (e *Engine) Available() bool {
	e.availMu.RLock()
	defer e.availMu.RUnlock()
	return e.available
}

// WaitForAvailability polls the cached flag until it is set, the timeout
// elapses or ctx is done.
func (e *Engine) WaitForAvailability(ctx context.Context, timeout time.Duration) bool {
	if e.Available() {
		return true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.AvailabilityPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return e.Available()
		case <-ticker.C:
			if e.Available() {
				return true
			}
		}
	}
}

// Subscribe returns a stream of sync events.
func (e *Engine) Subscribe() *events.Subscription[SyncEvent] {
	return e.events.Subscribe(events.DefaultBuffer)
}

func (e *Engine) publish(ev SyncEvent) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.events.Publish(ev)
}

// goBackground runs fn on a tracked goroutine. It reports false once the
// engine is closing.
func (e *Engine) goBackground(fn func(ctx context.Context)) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.bgClosed {
		return false
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(e.bgCtx)
	}()
	return true
}

// Close cancels background work and waits for it.
func (e *Engine) Close() error {
	e.bgMu.Lock()
	e.bgClosed = true
	e.bgMu.Unlock()
	e.bgCancel()
	e.bg.Wait()
	e.events.Close()
	return nil
}

func (e *Engine) unavailable(op, entity string) error {
	return ports.Wrap(op, entity, nil, ports.ErrRemoteUnavailable)
}

func (e *Engine) recordOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordSyncOp(op, result, time.Since(start).Seconds())
}
