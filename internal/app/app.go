// Package app assembles the dispatch pipeline from configuration. It is
// shared by the API server and the intake worker so both dispatch through
// identical adapters, providers and facility sources.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/handler"
	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/broadcast"
	"github.com/lifeguard/lifeguard/internal/config"
	"github.com/lifeguard/lifeguard/internal/database"
	"github.com/lifeguard/lifeguard/internal/dispatch"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/facility/claude"
	"github.com/lifeguard/lifeguard/internal/facility/postgres"
	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
	"github.com/lifeguard/lifeguard/internal/provider/slack"
	"github.com/lifeguard/lifeguard/internal/provider/twilio"
)

// Components is the assembled dispatch pipeline.
type Components struct {
	Orchestrator *dispatch.Orchestrator
	Lookup       facility.Lookup
	Providers    *resilience.Registry
	Checks       []handler.DependencyCheck

	// Simulated is true when no real channel transport is configured.
	Simulated bool

	// Mode summarises the fan-out for the ops status endpoint.
	Mode *models.DispatchMode

	closers []func() error
}

// Close releases database pools and Pub/Sub clients.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Build wires the dispatch pipeline described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{Providers: resilience.NewRegistry()}

	registry, err := c.facilityRegistry(ctx, cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Lookup = facilityLookup(cfg, registry, logger)

	providerMetrics, err := resilience.NewMetrics()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("provider metrics: %w", err)
	}

	adapters := c.adapters(cfg, providerMetrics, logger)
	c.Mode = dispatchMode(c.Simulated, cfg.Dispatch.Recipients, adapters)

	dispatchMetrics, err := dispatch.NewMetrics()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("dispatch metrics: %w", err)
	}

	sink, err := c.reportSink(ctx, cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	orchestrator, err := dispatch.New(dispatch.Config{
		Lookup:         c.Lookup,
		Recipients:     cfg.Dispatch.Recipients,
		Adapters:       adapters,
		TaskTimeout:    cfg.Dispatch.TaskTimeout,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		Sink:           sink,
		Metrics:        dispatchMetrics,
		Logger:         logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("dispatch orchestrator: %w", err)
	}
	c.Orchestrator = orchestrator

	return c, nil
}

func (c *Components) facilityRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*facility.Registry, error) {
	if cfg.Facility.Source != config.FacilitySourcePostgres {
		return facility.NewRegistry(facility.DefaultFacilities()...), nil
	}

	pool, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect facility database: %w", err)
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })
	c.Checks = append(c.Checks, databaseCheck(pool))

	facilities, err := postgres.NewLoader(pool).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	if len(facilities) == 0 {
		logger.Warn().Msg("facility table is empty, using built-in facility set")
		return facility.NewRegistry(facility.DefaultFacilities()...), nil
	}

	logger.Info().
		Str("host", cfg.DB.Host).
		Str("database", cfg.DB.Database).
		Int("facilities", len(facilities)).
		Msg("facilities loaded from database")
	return facility.NewRegistry(facilities...), nil
}

func databaseCheck(pool *pgxpool.Pool) handler.DependencyCheck {
	return handler.DependencyCheck{
		Name: "database",
		Check: func(ctx context.Context) error {
			return database.Check(ctx, pool)
		},
	}
}

func facilityLookup(cfg *config.Config, registry *facility.Registry, logger zerolog.Logger) facility.Lookup {
	if cfg.Anthropic.APIKey == "" {
		return registry
	}

	logger.Info().Msg("AI facility finder enabled")
	return &facility.FallbackLookup{
		Primary: claude.New(claude.Config{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			Timeout: cfg.Facility.LookupTimeout,
			Logger:  logger,
		}),
		Fallback: registry,
		Timeout:  cfg.Facility.LookupTimeout,
		Logger:   logger.With().Str("component", "facility_lookup").Logger(),
	}
}

// adapters returns the chat, text and voice adapters in channel order. Each
// Twilio-backed channel runs on its own client and circuit breaker.
func (c *Components) adapters(cfg *config.Config, metrics *resilience.Metrics, logger zerolog.Logger) []notify.Adapter {
	if !cfg.Twilio.Configured() {
		c.Simulated = true
		sender := notify.NewSimulatedSender(logger)
		caller := notify.NewSimulatedCaller(logger)
		logger.Warn().Msg("twilio credentials missing, running in simulation mode")

		chat := notify.NewChatAdapter(sender, cfg.Twilio.WhatsAppNumber, notify.WhatsAppPrefix)
		if cfg.Slack.WebhookURL != "" {
			chat = c.slackChat(cfg, logger)
		}
		return []notify.Adapter{
			chat,
			notify.NewTextAdapter(sender, cfg.Twilio.PhoneNumber),
			notify.NewVoiceAdapter(caller, cfg.Twilio.PhoneNumber),
		}
	}

	newTwilio := func(name string) *twilio.Client {
		return twilio.NewClient(twilio.ClientConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			Name:       name,
			BaseURL:    cfg.Twilio.BaseURL,
			Registry:   c.Providers,
			Metrics:    metrics,
			Logger:     logger,
		})
	}
	logger.Info().Msg("twilio delivery enabled")

	var chat *notify.ChatAdapter
	if cfg.Slack.WebhookURL != "" {
		chat = c.slackChat(cfg, logger)
	} else {
		from := cfg.Twilio.WhatsAppNumber
		if from == "" {
			from = cfg.Twilio.PhoneNumber
		}
		chat = notify.NewChatAdapter(newTwilio(twilio.ProviderWhatsApp), from, notify.WhatsAppPrefix)
	}

	return []notify.Adapter{
		chat,
		notify.NewTextAdapter(newTwilio(twilio.ProviderSMS), cfg.Twilio.PhoneNumber),
		notify.NewVoiceAdapter(newTwilio(twilio.ProviderVoice), cfg.Twilio.PhoneNumber),
	}
}

func (c *Components) slackChat(cfg *config.Config, logger zerolog.Logger) *notify.ChatAdapter {
	logger.Info().Msg("slack chat delivery enabled")
	return notify.NewChatAdapter(slack.New(cfg.Slack.WebhookURL, nil, c.Providers, logger), "", "")
}

func dispatchMode(simulated bool, recipients []notify.Recipient, adapters []notify.Adapter) *models.DispatchMode {
	channels := make([]string, 0, len(adapters))
	for _, a := range adapters {
		channels = append(channels, string(a.Channel()))
	}
	return &models.DispatchMode{
		Simulated:  simulated,
		Recipients: len(recipients),
		Channels:   channels,
	}
}

func (c *Components) reportSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (dispatch.ReportSink, error) {
	if cfg.PubSub.ReportTopic == "" {
		return nil, nil
	}

	topic, err := broadcast.NewTopicPublisher(ctx, broadcast.TopicConfig{
		ProjectID: cfg.PubSub.ProjectID,
		TopicName: cfg.PubSub.ReportTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("report publisher: %w", err)
	}
	c.closers = append(c.closers, topic.Close)

	logger.Info().
		Str("topic", cfg.PubSub.ReportTopic).
		Msg("dispatch reports will be published")
	return broadcast.NewReportPublisher(topic, logger), nil
}
