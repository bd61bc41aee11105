// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tripwire/internal/api"
	"github.com/tomtom215/tripwire/internal/auth"
	"github.com/tomtom215/tripwire/internal/config"
	"github.com/tomtom215/tripwire/internal/ingest"
	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/notify"
	"github.com/tomtom215/tripwire/internal/pipeline"
	"github.com/tomtom215/tripwire/internal/ratelimit"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/rules"
	"github.com/tomtom215/tripwire/internal/scheduler"
	"github.com/tomtom215/tripwire/internal/scoring"
	"github.com/tomtom215/tripwire/internal/store"
	"github.com/tomtom215/tripwire/internal/supervisor"
	"github.com/tomtom215/tripwire/internal/supervisor/services"
)

// app holds every long-lived component built from a Config.
type app struct {
	cfg *config.Config

	store     store.Store
	admission *ratelimit.Limiter
	throttle  *ratelimit.Limiter
	executor  *response.Executor
	queue     *scheduler.Queue
	pipeline  *pipeline.Pipeline

	bus      *gochannel.GoChannel
	consumer *ingest.Consumer

	handler http.Handler
	server  *http.Server
}

// busPublisher hands API-submitted events to the bus instead of the pipeline.
type busPublisher struct {
	pub   message.Publisher
	topic string
}

func (b busPublisher) PublishEvent(ev *models.ThreatEvent) error {
	return ingest.Publish(b.pub, b.topic, ev)
}

// newApp builds the component graph. The store is closed on error.
//
//nolint:gocyclo // sequential wiring
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: st}
	ok := false
	defer func() {
		if !ok {
			_ = st.Close()
		}
	}()

	backend, err := response.NewBackend(cfg.Executor.Backend)
	if err != nil {
		return nil, fmt.Errorf("mitigation backend: %w", err)
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.HistorySize,
		notify.WithChannels(buildChannels(cfg.Notify)...),
		notify.WithAlertStore(st))

	execOpts := []response.Option{
		response.WithStore(st),
		response.WithDispatcher(dispatcher),
		response.WithRetryBackoff(cfg.Executor.RetryBackoff),
	}
	if cfg.Executor.IncidentWebhookURL != "" {
		execOpts = append(execOpts, response.WithIncidentClient(
			response.NewWebhookIncidentClient(cfg.Executor.IncidentWebhookURL, nil, cfg.Executor.Backend.Timeout)))
	}
	if cfg.Executor.AuditHistory > 0 {
		execOpts = append(execOpts, response.WithAuditSink(response.NewMemoryAuditSink(cfg.Executor.AuditHistory)))
	} else {
		execOpts = append(execOpts, response.WithAuditSink(response.NewLogAuditSink()))
	}
	a.executor = response.NewExecutor(backend, execOpts...)

	a.throttle = ratelimit.New(ratelimit.Config{
		Window:    cfg.Rules.ThrottleWindow,
		Blacklist: cfg.Rules.ThrottleBlacklist,
	}, ratelimit.WithName("rules"))
	engine := rules.NewEngine(rules.WithStore(st), rules.WithThrottle(a.throttle))
	if err := loadRules(ctx, engine, cfg.Rules.LoadDefaults); err != nil {
		return nil, err
	}

	a.admission = ratelimit.New(ratelimit.Config{
		Window:    cfg.Admission.Window,
		Max:       cfg.Admission.Max,
		Blacklist: cfg.Admission.Blacklist,
		MaxKeys:   cfg.Admission.MaxKeys,
	}, ratelimit.WithName("ingest"))

	a.queue = scheduler.New()
	a.pipeline, err = pipeline.New(pipeline.Deps{
		Admission:  a.admission,
		Enricher:   scoring.NewEnricher(nil),
		Engine:     engine,
		Executor:   a.executor,
		Scheduler:  a.queue,
		Executions: st,
		Alerts:     st,
		History:    dispatcher,
	})
	if err != nil {
		return nil, err
	}

	restored, err := a.executor.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore mitigations: %w", err)
	}
	logging.Info().Int("entries", restored).Msg("Mitigation state restored")

	handlerOpts := []api.HandlerOption{api.WithVersion(version)}
	if cfg.Bus.Enabled {
		a.bus = ingest.NewBus(cfg.Bus)
		a.consumer, err = ingest.NewConsumer(cfg.Bus, a.bus, a.pipeline)
		if err != nil {
			return nil, fmt.Errorf("ingest consumer: %w", err)
		}
		handlerOpts = append(handlerOpts, api.WithEventPublisher(busPublisher{pub: a.bus, topic: cfg.Bus.Topic}))
	}

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == "jwt" {
		jwtManager, err = auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
	}

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitRequests
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitDisabled

	router := api.NewRouter(api.NewHandler(a.pipeline, handlerOpts...), api.NewChiMiddleware(mwCfg), jwtManager)
	a.handler = router.SetupChi()
	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	ok = true
	return a, nil
}

// loadRules prefers stored rules and seeds the defaults into an empty store.
func loadRules(ctx context.Context, engine *rules.Engine, seedDefaults bool) error {
	n, err := engine.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if n > 0 || !seedDefaults {
		return nil
	}
	added, err := engine.LoadDefaults(ctx)
	if err != nil {
		return fmt.Errorf("load default rules: %w", err)
	}
	logging.Info().Int("count", added).Msg("Seeded default rules")
	return nil
}

func buildChannels(cfg config.NotifyConfig) []notify.Channel {
	channels := []notify.Channel{notify.LogChannel{}}
	for _, w := range cfg.Webhooks {
		channels = append(channels, notify.NewWebhookChannel(w))
	}
	if cfg.Discord.Enabled {
		channels = append(channels, notify.NewDiscordChannel(cfg.Discord))
	}
	for _, s := range cfg.Shoutrrr {
		channels = append(channels, notify.NewShoutrrrChannel(s))
	}
	return channels
}

// tree assembles the supervisor tree for this app.
func (a *app) tree() (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), a.cfg.Supervisor)
	if err != nil {
		return nil, err
	}

	add := func(layer supervisor.Layer, svc suture.Service) {
		if _, addErr := tree.Add(layer, svc); addErr != nil && err == nil {
			err = addErr
		}
	}

	add(supervisor.LayerData, a.queue)
	add(supervisor.LayerData, services.NewReaperService(a.executor, a.cfg.Executor.ReapInterval, a.admission, a.throttle))
	if bs, isBadger := a.store.(*store.BadgerStore); isBadger {
		add(supervisor.LayerData, store.NewGCService(bs, 0))
	}
	if a.consumer != nil {
		add(supervisor.LayerMessaging, a.consumer)
	}
	add(supervisor.LayerAPI, services.NewHTTPServerService(a.server, a.server.Addr, a.cfg.Server.ShutdownTimeout))
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// run serves the supervisor tree until ctx is canceled.
func (a *app) run(ctx context.Context) error {
	tree, err := a.tree()
	if err != nil {
		return err
	}

	logging.Info().Str("addr", a.server.Addr).Msg("Starting supervisor tree")
	return tree.Run(ctx)
}

// close releases the store and the bus.
func (a *app) close() error {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing event bus")
		}
	}
	return a.store.Close()
}
