// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/tripwire/internal/logging"
)

// Layer names one child supervisor of the tree.
type Layer string

const (
	// LayerData holds the scheduler, the reaper, and store maintenance.
	LayerData Layer = "data-layer"
	// LayerMessaging holds the event bus consumer.
	LayerMessaging Layer = "messaging-layer"
	// LayerAPI holds the HTTP server.
	LayerAPI Layer = "api-layer"
)

// Layers lists every layer in start order.
var Layers = []Layer{LayerData, LayerMessaging, LayerAPI}

// ErrUnknownLayer is returned by Add for a layer the tree does not have.
var ErrUnknownLayer = errors.New("unknown supervisor layer")

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64 `koanf:"failure_threshold"`

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64 `koanf:"failure_decay"`

	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration `koanf:"failure_backoff"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the layered supervisor hierarchy described in the
// package documentation. It remembers which services were added to which
// layer so startup and shutdown can be reported per layer.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig

	mu    sync.Mutex
	names map[Layer][]string
}

// NewSupervisorTree creates a supervisor tree. Zero config values take defaults.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()
	if config.FailureThreshold < 0 || config.FailureDecay < 0 || config.FailureBackoff < 0 || config.ShutdownTimeout < 0 {
		return nil, fmt.Errorf("supervisor config must not be negative: %+v", config)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver. Layers inherit the hook from the root.
	handler := &sutureslog.Handler{Logger: logger}
	t := &SupervisorTree{
		root:   suture.New("tripwire", config.spec(handler.MustHook())),
		layers: make(map[Layer]*suture.Supervisor, len(Layers)),
		logger: logger,
		config: config,
		names:  make(map[Layer][]string, len(Layers)),
	}
	for _, l := range Layers {
		sup := suture.New(string(l), config.spec(nil))
		t.layers[l] = sup
		t.root.Add(sup)
	}
	return t, nil
}

// Add starts svc under layer. Services added after Run are started at once.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		return suture.ServiceToken{}, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}
	t.mu.Lock()
	t.names[layer] = append(t.names[layer], serviceName(svc))
	t.mu.Unlock()
	return sup.Add(svc), nil
}

// Services returns the names of the services added to layer, in order.
func (t *SupervisorTree) Services(layer Layer) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names[layer]...)
}

// Start runs the tree in a goroutine. The channel receives the result when
// the tree stops.
func (t *SupervisorTree) Start(ctx context.Context) <-chan error {
	for _, l := range Layers {
		if names := t.Services(l); len(names) > 0 {
			logging.Info().Str("layer", string(l)).Strs("services", names).Msg("Starting supervisor layer")
		}
	}
	return t.root.ServeBackground(ctx)
}

// Run serves the tree until ctx is canceled, then logs every service that
// missed the shutdown timeout. A clean shutdown returns nil.
func (t *SupervisorTree) Run(ctx context.Context) error {
	err := <-t.Start(ctx)

	unstopped, reportErr := t.root.UnstoppedServiceReport()
	if reportErr != nil {
		logging.Warn().Err(reportErr).Msg("Unstopped service report unavailable")
	}
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service did not stop in time")
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

func serviceName(svc suture.Service) string {
	if s, ok := svc.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", svc)
}
