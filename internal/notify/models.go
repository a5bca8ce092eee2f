// Package notify delivers incident notifications over chat, text and voice channels.
package notify

import (
	"context"
	"time"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/incident"
)

// Channel is a notification medium.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// ReportKey returns the key used for the channel in delivery reports.
func (c Channel) ReportKey() string {
	switch c {
	case ChannelChat:
		return "whatsapp"
	case ChannelText:
		return "sms"
	case ChannelVoice:
		return "voiceCall"
	default:
		return string(c)
	}
}

// Outcome is the result of a single delivery attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Recipient is a dispatch target.
type Recipient struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// ChannelResult records the outcome of one (recipient, channel) task.
type ChannelResult struct {
	Channel           Channel       `json:"channel"`
	Recipient         string        `json:"recipient"`
	Target            string        `json:"target"`
	Outcome           Outcome       `json:"outcome"`
	ProviderReference string        `json:"providerReference,omitempty"`
	ProviderStatus    string        `json:"providerStatus,omitempty"`
	ErrorDetail       string        `json:"errorDetail,omitempty"`
	Simulated         bool          `json:"simulated,omitempty"`
	Duration          time.Duration `json:"-"`
}

// Delivered reports whether the task succeeded.
func (r ChannelResult) Delivered() bool {
	return r.Outcome == OutcomeDelivered
}

// Message is an outbound chat or text message.
type Message struct {
	From string
	To   string
	Body string
}

// Call is an outbound voice call rendered as TwiML.
type Call struct {
	From  string
	To    string
	TwiML string
}

// Receipt is the provider's acknowledgement of an accepted request.
type Receipt struct {
	Reference string
	Status    string
	Simulated bool
}

// MessageSender delivers chat and text messages.
type MessageSender interface {
	SendMessage(ctx context.Context, msg Message) (Receipt, error)
}

// CallPlacer places voice calls.
type CallPlacer interface {
	PlaceCall(ctx context.Context, call Call) (Receipt, error)
}

// Adapter delivers an incident notification over one channel.
// Send never returns an error; failures are reported in the result.
type Adapter interface {
	Channel() Channel
	Send(ctx context.Context, to Recipient, inc incident.Incident, assigned *facility.RankedFacility) ChannelResult
}
