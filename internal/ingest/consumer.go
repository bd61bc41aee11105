// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package ingest feeds threat events from a message bus into the pipeline.
//
// Producers (protocol listeners, log shippers) publish JSON-encoded
// models.ThreatEvent messages to a watermill topic. Consumer runs a watermill
// router that decodes each message and calls Submit. Malformed payloads and
// throttled or invalid events are acknowledged and counted, never redelivered.
//
// In a single process the bus is a gochannel pub/sub (NewBus); any other
// watermill Subscriber can be passed to NewConsumer instead.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/pipeline"
)

// DefaultTopic is the topic threat events are published to.
const DefaultTopic = "threat.events"

// Config configures the ingest bus and consumer.
type Config struct {
	Enabled      bool          `koanf:"enabled"`
	Topic        string        `koanf:"topic"`
	Buffer       int64         `koanf:"buffer"`
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// Submitter accepts events. Satisfied by *pipeline.Pipeline.
type Submitter interface {
	Submit(ctx context.Context, event *models.ThreatEvent) (pipeline.Outcome, error)
}

// Stats are cumulative consumer counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Throttled uint64 `json:"throttled"`
	Malformed uint64 `json:"malformed"`
}

// NewBus creates an in-process pub/sub. Publishing blocks only when the
// subscriber's buffer is full.
func NewBus(cfg Config) *gochannel.GoChannel {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
	}, NewLogger(logging.WithComponent("ingest-bus")))
}

// Publish encodes event and publishes it to topic.
func Publish(pub message.Publisher, topic string, event *models.ThreatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Consumer routes bus messages into a Submitter. It is a suture.Service:
// every Serve call builds a fresh router, so restarts are safe.
type Consumer struct {
	subscriber   message.Subscriber
	submitter    Submitter
	topic        string
	closeTimeout time.Duration
	logger       watermill.LoggerAdapter

	ready     chan struct{}
	readyOnce sync.Once

	received  atomic.Uint64
	processed atomic.Uint64
	throttled atomic.Uint64
	malformed atomic.Uint64
}

// NewConsumer creates a Consumer reading cfg.Topic from subscriber.
func NewConsumer(cfg Config, subscriber message.Subscriber, submitter Submitter) (*Consumer, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("ingest: subscriber is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("ingest: submitter is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 10 * time.Second
	}
	return &Consumer{
		subscriber:   subscriber,
		submitter:    submitter,
		topic:        topic,
		closeTimeout: closeTimeout,
		logger:       NewLogger(logging.WithComponent("ingest")),
		ready:        make(chan struct{}),
	}, nil
}

// Handle processes one message. It only returns an error for failures worth
// redelivering; bad input is acknowledged.
func (c *Consumer) Handle(msg *message.Message) error {
	c.received.Add(1)

	var event models.ThreatEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.malformed.Add(1)
		metrics.EventsTotal.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed event")
		return nil
	}

	ctx := logging.ContextWithCorrelationID(msg.Context(), msg.UUID)
	_, err := c.submitter.Submit(ctx, &event)
	switch {
	case err == nil:
		c.processed.Add(1)
	case models.IsThrottled(err):
		c.throttled.Add(1)
	case models.IsValidation(err):
		c.malformed.Add(1)
		logging.Ctx(ctx).Warn().Err(err).Str("ip", event.SourceIP).Msg("dropping invalid event")
	default:
		return err
	}
	return nil
}

// Serve implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.closeTimeout}, c.logger)
	if err != nil {
		return fmt.Errorf("create ingest router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler("threat-events", c.topic, c.subscriber, c.Handle)

	go func() {
		select {
		case <-router.Running():
			c.readyOnce.Do(func() { close(c.ready) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("ingest router: %w", err)
	}
	return ctx.Err()
}

// Ready is closed once the router has subscribed for the first time.
func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

// Stats returns cumulative counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Processed: c.processed.Load(),
		Throttled: c.throttled.Load(),
		Malformed: c.malformed.Load(),
	}
}

// String implements fmt.Stringer for suture logging.
func (c *Consumer) String() string {
	return "ingest-consumer"
}
