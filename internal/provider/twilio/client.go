// Package twilio provides a client for the Twilio messaging and voice APIs.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the Twilio REST API.
	DefaultBaseURL = "https://api.twilio.com"

	// ProviderName identifies this provider.
	ProviderName = "twilio"

	// Provider names of the per-channel clients, one circuit breaker each.
	ProviderWhatsApp = "twilio-whatsapp"
	ProviderSMS      = "twilio-sms"
	ProviderVoice    = "twilio-voice"

	apiVersion = "2010-04-01"
)

// ClientConfig holds configuration for the Twilio client.
type ClientConfig struct {
	AccountSID string
	AuthToken  string

	// Name is the provider name of the default client's circuit breaker and
	// health entry (defaults to ProviderName).
	Name string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a resilient client registered in Registry is created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 5s).
	Timeout time.Duration

	// Registry receives the provider health of the default client.
	Registry *resilience.Registry

	// Metrics records request durations of the default client.
	Metrics *resilience.Metrics

	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Twilio API client. It implements notify.MessageSender and
// notify.CallPlacer.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Twilio client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	name := cfg.Name
	if name == "" {
		name = ProviderName
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            name,
			Timeout:         timeout,
			MaxRetries:      1,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     time.Second,
			Registry:        cfg.Registry,
			Metrics:         cfg.Metrics,
			Logger:          cfg.Logger,
		})
	}

	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", name).Logger(),
	}
}

// API response types (from the Twilio REST API).

type resourceResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// APIError is a non-2xx response from Twilio.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio: %d %s (http %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("twilio: http %d", e.StatusCode)
}

// SendMessage sends an SMS or WhatsApp message.
func (c *Client) SendMessage(ctx context.Context, msg notify.Message) (notify.Receipt, error) {
	form := url.Values{}
	form.Set("From", msg.From)
	form.Set("To", msg.To)
	form.Set("Body", msg.Body)

	return c.create(ctx, "Messages.json", form)
}

// PlaceCall places a voice call that speaks the given TwiML.
func (c *Client) PlaceCall(ctx context.Context, call notify.Call) (notify.Receipt, error) {
	form := url.Values{}
	form.Set("From", call.From)
	form.Set("To", call.To)
	form.Set("Twiml", call.TwiML)

	return c.create(ctx, "Calls.json", form)
}

func (c *Client) create(ctx context.Context, resource string, form url.Values) (notify.Receipt, error) {
	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/%s", c.baseURL, apiVersion, url.PathEscape(c.accountSID), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		}
		c.logger.Warn().
			Str("resource", resource).
			Int("status", resp.StatusCode).
			Int("code", apiErr.Code).
			Msg("twilio request rejected")
		return notify.Receipt{}, apiErr
	}

	var rr resourceResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return notify.Receipt{}, fmt.Errorf("decode response: %w", err)
	}

	return notify.Receipt{Reference: rr.SID, Status: rr.Status}, nil
}
