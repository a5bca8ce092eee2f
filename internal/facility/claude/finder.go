// Package claude finds nearby emergency facilities with the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	defaultMaxTokens = 1024
	defaultTimeout   = 10 * time.Second
)

// ErrMalformedResponse is returned when the model answer cannot be parsed.
var ErrMalformedResponse = errors.New("malformed facility response")

const systemPrompt = `You are the facility locator of an emergency dispatch system.
Answer ONLY with a JSON array. Each element must be an object with the keys
"name", "type" (one of "Hospital", "Police", "Ambulance"), "address",
"latitude", "longitude" and "phone". Do not add commentary.`

// Config holds configuration for the facility finder.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Finder implements facility.Lookup by asking the model for nearby facilities.
type Finder struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

// New creates a new facility finder.
func New(cfg Config) *Finder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Finder{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Facilities implements facility.Lookup.
func (f *Finder) Facilities(ctx context.Context, origin geo.Coordinate) ([]facility.Facility, error) {
	prompt := fmt.Sprintf(
		"List the nearest hospitals, police stations and ambulance hubs (up to 3 of each) to coordinates %.6f, %.6f.",
		origin.Latitude, origin.Longitude,
	)

	msg, err := f.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(f.model),
		MaxTokens: f.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	facilities, dropped, err := parseFacilities(text.String())
	if err != nil {
		return nil, err
	}

	f.logger.Debug().
		Int("count", len(facilities)).
		Int("dropped", dropped).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("facility finder answered")

	return facilities, nil
}

type facilityEntry struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Phone     string   `json:"phone"`
}

// parseFacilities extracts the JSON array from the model answer and
// normalises it. Entries with an unknown type or invalid coordinates are
// dropped and counted.
func parseFacilities(text string) ([]facility.Facility, int, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, 0, fmt.Errorf("%w: no JSON array in answer", ErrMalformedResponse)
	}

	var entries []facilityEntry
	if err := json.Unmarshal([]byte(text[start:end+1]), &entries); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	counters := make(map[facility.Category]int)
	facilities := make([]facility.Facility, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		cat, err := facility.ParseCategory(e.Type)
		if err != nil || e.Latitude == nil || e.Longitude == nil || strings.TrimSpace(e.Name) == "" {
			dropped++
			continue
		}
		loc := geo.Coordinate{Latitude: *e.Latitude, Longitude: *e.Longitude}
		if loc.Validate() != nil {
			dropped++
			continue
		}

		counters[cat]++
		facilities = append(facilities, facility.Facility{
			ID:       fmt.Sprintf("AI-%s-%d", strings.ToUpper(string(cat)), counters[cat]),
			Category: cat,
			Name:     strings.TrimSpace(e.Name),
			Address:  strings.TrimSpace(e.Address),
			Location: loc,
			Contact:  strings.TrimSpace(e.Phone),
		})
	}

	return facilities, dropped, nil
}
