// Package main provides the entrypoint for the LifeGuard SOS intake worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/handler"
	"github.com/lifeguard/lifeguard/internal/app"
	"github.com/lifeguard/lifeguard/internal/config"
	"github.com/lifeguard/lifeguard/internal/telemetry"
	"github.com/lifeguard/lifeguard/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "lifeguard-worker"

	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Server.Env).
		Msg("starting LifeGuard worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build dispatch pipeline")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer func() {
		if closeErr := components.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to release dispatch resources")
		}
	}()

	intakeCfg := worker.DefaultIntakeConfig()
	intakeCfg.ProjectID = cfg.PubSub.ProjectID
	intakeCfg.SubscriptionName = cfg.PubSub.IntakeSubscription
	intakeCfg.HandleTimeout = components.Orchestrator.FanOutBudget() + cfg.Facility.LookupTimeout + 5*time.Second

	intakeHandler := worker.NewIntakeHandler(components.Orchestrator, intakeCfg, log)
	intake, err := worker.NewPubSubIntake(ctx, intakeCfg, intakeHandler, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create sos intake")
		os.Exit(1)
	}
	defer func() {
		if closeErr := intake.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close sos intake")
		}
	}()

	// Health endpoints for the container platform
	opsHandler := handler.NewOpsHandler(Version, BuildTime, components.Providers, components.Checks...).
		WithDispatchMode(components.Mode)
	mux := chi.NewRouter()
	mux.Get("/health", opsHandler.HealthCheck)
	mux.Get("/ready", opsHandler.ReadinessCheck)
	mux.Get("/status", opsHandler.SystemStatus)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	intakeDone := make(chan error, 1)
	go func() {
		intakeDone <- intake.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down worker")
		cancel()
		// Receive returns once in-flight dispatches have been acked or nacked.
		if err := <-intakeDone; err != nil {
			log.Error().Err(err).Msg("sos intake stopped with error")
		}
	case err := <-intakeDone:
		if err != nil {
			log.Error().Err(err).Msg("sos intake stopped")
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
