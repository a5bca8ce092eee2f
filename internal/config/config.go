// Package config loads LifeGuard service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/database"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/notify"
)

// Facility sources.
const (
	FacilitySourceStatic   = "static"
	FacilitySourcePostgres = "postgres"
)

// DefaultRecipients is used when DISPATCH_RECIPIENTS is unset.
const DefaultRecipients = "Ambulance Service|+15550100101;Police Department|+15550100102;General Hospital|+15550100103"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Dispatch  DispatchConfig
	Facility  FacilityConfig
	Anthropic AnthropicConfig
	Twilio    TwilioConfig
	Slack     SlackConfig
	PubSub    PubSubConfig
	DB        database.Config
}

type ServerConfig struct {
	Port       int
	Env        string
	RequireTLS bool
}

type LoggingConfig struct {
	Level string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

type DispatchConfig struct {
	TaskTimeout    time.Duration
	MaxConcurrency int
	Recipients     []notify.Recipient
}

type FacilityConfig struct {
	Source        string
	LookupTimeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	WhatsAppNumber string
	BaseURL        string
}

// Configured reports whether real Twilio delivery is possible.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.PhoneNumber != ""
}

type SlackConfig struct {
	WebhookURL string
}

type PubSubConfig struct {
	ProjectID          string
	ReportTopic        string
	IntakeSubscription string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	recipients, err := ParseRecipients(getEnv("DISPATCH_RECIPIENTS", DefaultRecipients))
	if err != nil {
		return nil, err
	}

	env := &envReader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:       env.getInt("APP_PORT", 8080),
			Env:        getEnv("APP_ENV", "development"),
			RequireTLS: env.getBool("REQUIRE_TLS", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      env.getBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  env.getFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		Dispatch: DispatchConfig{
			TaskTimeout:    env.getDuration("DISPATCH_TASK_TIMEOUT", 6*time.Second),
			MaxConcurrency: env.getInt("DISPATCH_MAX_CONCURRENCY", 0),
			Recipients:     recipients,
		},
		Facility: FacilityConfig{
			Source:        getEnv("FACILITY_SOURCE", FacilitySourceStatic),
			LookupTimeout: env.getDuration("FACILITY_LOOKUP_TIMEOUT", facility.DefaultLookupTimeout),
		},
		Anthropic: AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  os.Getenv("ANTHROPIC_MODEL"),
		},
		Twilio: TwilioConfig{
			AccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
			PhoneNumber:    os.Getenv("TWILIO_PHONE_NUMBER"),
			WhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
			BaseURL:        os.Getenv("TWILIO_BASE_URL"),
		},
		Slack: SlackConfig{
			WebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		},
		PubSub: PubSubConfig{
			ProjectID:          os.Getenv("PUBSUB_PROJECT_ID"),
			ReportTopic:        os.Getenv("PUBSUB_REPORT_TOPIC"),
			IntakeSubscription: os.Getenv("PUBSUB_INTAKE_SUBSCRIPTION"),
		},
		DB: database.ConfigFromEnv(),
	}

	if err := errors.Join(append(env.errs, cfg.validate())...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogLevel returns the parsed zerolog level.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid APP_PORT: %d", c.Server.Port))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %q", c.Logging.Level))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1, got %v", c.Telemetry.SampleRatio))
	}
	if c.Dispatch.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_TASK_TIMEOUT must be positive, got %s", c.Dispatch.TaskTimeout))
	}
	if c.Dispatch.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_CONCURRENCY must not be negative, got %d", c.Dispatch.MaxConcurrency))
	}
	switch c.Facility.Source {
	case FacilitySourceStatic, FacilitySourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("invalid FACILITY_SOURCE: %q (want %s or %s)", c.Facility.Source, FacilitySourceStatic, FacilitySourcePostgres))
	}
	if c.Facility.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FACILITY_LOOKUP_TIMEOUT must be positive, got %s", c.Facility.LookupTimeout))
	}
	if (c.Twilio.AccountSID == "") != (c.Twilio.AuthToken == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together"))
	}
	if (c.PubSub.ReportTopic != "" || c.PubSub.IntakeSubscription != "") && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required when a topic or subscription is configured"))
	}

	return errors.Join(errs...)
}

// ParseRecipients parses a recipient list of the form
// "Name|+number;Name|+number".
func ParseRecipients(s string) ([]notify.Recipient, error) {
	var recipients []notify.Recipient
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, number, ok := strings.Cut(entry, "|")
		name, number = strings.TrimSpace(name), strings.TrimSpace(number)
		if !ok || name == "" || number == "" {
			return nil, fmt.Errorf("invalid DISPATCH_RECIPIENTS entry %q: want Name|+number", entry)
		}
		if !strings.HasPrefix(number, "+") {
			return nil, fmt.Errorf("invalid DISPATCH_RECIPIENTS entry %q: number must be in E.164 format", entry)
		}
		recipients = append(recipients, notify.Recipient{Name: name, PhoneNumber: number})
	}
	if len(recipients) == 0 {
		return nil, errors.New("DISPATCH_RECIPIENTS must name at least one recipient")
	}
	return recipients, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// envReader parses typed environment variables and records every malformed
// value instead of silently using the fallback.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, val string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s: %q: %w", key, val, err))
}

func (r *envReader) getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		r.fail(key, val, err)
		return fallback
	}
	return i
}

func (r *envReader) getFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.fail(key, val, err)
		return fallback
	}
	return f
}

func (r *envReader) getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		r.fail(key, val, err)
		return fallback
	}
	return b
}

func (r *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.fail(key, val, err)
		return fallback
	}
	return d
}
