package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/dispatch"
)

// Decision tells the subscriber what to do with a message.
type Decision int

const (
	// Ack removes the message from the subscription.
	Ack Decision = iota
	// Nack asks Pub/Sub to redeliver the message.
	Nack
)

func (d Decision) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// Dispatcher runs an incident dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Input) (*dispatch.Report, error)
}

// IntakeHandler turns SOS events delivered over Pub/Sub into dispatches.
type IntakeHandler struct {
	dispatcher Dispatcher
	cfg        IntakeConfig
	seen       *recentIDs
	logger     zerolog.Logger
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(dispatcher Dispatcher, cfg IntakeConfig, logger zerolog.Logger) *IntakeHandler {
	cfg = cfg.withDefaults()
	return &IntakeHandler{
		dispatcher: dispatcher,
		cfg:        cfg,
		seen:       newRecentIDs(cfg.DedupWindow),
		logger:     logger.With().Str("component", "intake").Logger(),
	}
}

// Handle processes one SOS event. Events that can never succeed (malformed
// JSON, validation errors) are acked and dropped; internal faults are nacked
// for redelivery. A dispatch whose channels all failed is still acked: the
// failure is in the report, and redelivery would repeat delivered calls.
func (h *IntakeHandler) Handle(ctx context.Context, messageID string, data []byte) Decision {
	logger := h.logger.With().Str("message_id", messageID).Logger()

	var req models.DispatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logger.Error().Err(err).Msg("dropping malformed sos event")
		return Ack
	}

	// Events without an id are keyed on the message id so redeliveries of
	// the same message are still recognised.
	key := req.ID
	if key == "" {
		key = "msg:" + messageID
	}
	if h.seen.contains(key) {
		logger.Info().Str("key", key).Msg("duplicate sos event ignored")
		return Ack
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.HandleTimeout)
	defer cancel()

	report, err := h.dispatcher.Dispatch(ctx, req.ToInput())
	switch {
	case err == nil:
	case dispatch.IsValidation(err):
		logger.Warn().Err(err).Msg("dropping invalid sos event")
		return Ack
	default:
		logger.Error().Err(err).Msg("dispatch failed, requesting redelivery")
		return Nack
	}

	h.seen.add(key)
	logger.Info().
		Str("incident_id", report.IncidentID).
		Str("status", string(report.Status)).
		Int("delivered", report.Delivered).
		Int("total", report.Total).
		Msg("sos event dispatched")
	return Ack
}

// PubSubIntake receives SOS events from a Pub/Sub subscription.
type PubSubIntake struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          *IntakeHandler
	logger           zerolog.Logger
}

// NewPubSubIntake creates a subscriber bound to handler.
func NewPubSubIntake(ctx context.Context, cfg IntakeConfig, handler *IntakeHandler, logger zerolog.Logger) (*PubSubIntake, error) {
	if cfg.ProjectID == "" || cfg.SubscriptionName == "" {
		return nil, errors.New("intake: project id and subscription name are required")
	}
	cfg = cfg.withDefaults()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &PubSubIntake{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          handler,
		logger:           logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (p *PubSubIntake) Start(ctx context.Context) error {
	p.logger.Info().
		Str("subscription", p.subscriptionName).
		Msg("starting sos intake")

	return p.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		p.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (p *PubSubIntake) Close() error {
	return p.client.Close()
}

func (p *PubSubIntake) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	p.logger.Debug().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Msg("received pubsub message")

	decision := p.handler.Handle(ctx, msg.ID, msg.Data)
	if decision == Nack {
		msg.Nack()
	} else {
		msg.Ack()
	}

	p.logger.Debug().
		Str("message_id", msg.ID).
		Stringer("decision", decision).
		Dur("duration", time.Since(startTime)).
		Msg("pubsub message handled")
}

// recentIDs remembers keys for a fixed window.
type recentIDs struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newRecentIDs(window time.Duration) *recentIDs {
	return &recentIDs{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (r *recentIDs) contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[key]
	return ok && r.now().Sub(at) < r.window
}

func (r *recentIDs) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, at := range r.seen {
		if now.Sub(at) >= r.window {
			delete(r.seen, k)
		}
	}
	r.seen[key] = now
}
