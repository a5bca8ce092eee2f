package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/incident"
)

// WhatsAppPrefix is the address prefix Twilio uses for WhatsApp numbers.
const WhatsAppPrefix = "whatsapp:"

// ChatAdapter delivers rich chat messages.
type ChatAdapter struct {
	sender MessageSender
	from   string
	prefix string
}

// NewChatAdapter creates a chat adapter. prefix is prepended to both sender
// and recipient addresses (WhatsAppPrefix for Twilio, empty otherwise).
func NewChatAdapter(sender MessageSender, from, prefix string) *ChatAdapter {
	return &ChatAdapter{sender: sender, from: from, prefix: prefix}
}

// Channel implements Adapter.
func (a *ChatAdapter) Channel() Channel { return ChannelChat }

// Send implements Adapter.
func (a *ChatAdapter) Send(ctx context.Context, to Recipient, inc incident.Incident, assigned *facility.RankedFacility) ChannelResult {
	msg := Message{
		From: a.address(a.from),
		To:   a.address(to.PhoneNumber),
		Body: ChatBody(inc, assigned),
	}
	return deliver(ctx, ChannelChat, to, msg.To, func(ctx context.Context) (Receipt, error) {
		return a.sender.SendMessage(ctx, msg)
	})
}

func (a *ChatAdapter) address(number string) string {
	if number == "" || a.prefix == "" {
		return number
	}
	return a.prefix + number
}

// TextAdapter delivers short text messages.
type TextAdapter struct {
	sender MessageSender
	from   string
}

// NewTextAdapter creates a text adapter.
func NewTextAdapter(sender MessageSender, from string) *TextAdapter {
	return &TextAdapter{sender: sender, from: from}
}

// Channel implements Adapter.
func (a *TextAdapter) Channel() Channel { return ChannelText }

// Send implements Adapter.
func (a *TextAdapter) Send(ctx context.Context, to Recipient, inc incident.Incident, assigned *facility.RankedFacility) ChannelResult {
	msg := Message{From: a.from, To: to.PhoneNumber, Body: TextBody(inc, assigned)}
	return deliver(ctx, ChannelText, to, msg.To, func(ctx context.Context) (Receipt, error) {
		return a.sender.SendMessage(ctx, msg)
	})
}

// VoiceAdapter places spoken dispatch calls.
type VoiceAdapter struct {
	placer CallPlacer
	from   string
}

// NewVoiceAdapter creates a voice adapter.
func NewVoiceAdapter(placer CallPlacer, from string) *VoiceAdapter {
	return &VoiceAdapter{placer: placer, from: from}
}

// Channel implements Adapter.
func (a *VoiceAdapter) Channel() Channel { return ChannelVoice }

// Send implements Adapter.
func (a *VoiceAdapter) Send(ctx context.Context, to Recipient, inc incident.Incident, assigned *facility.RankedFacility) ChannelResult {
	call := Call{From: a.from, To: to.PhoneNumber, TwiML: VoiceTwiML(inc, assigned)}
	return deliver(ctx, ChannelVoice, to, call.To, func(ctx context.Context) (Receipt, error) {
		return a.placer.PlaceCall(ctx, call)
	})
}

// deliver makes exactly one provider call and converts every failure mode,
// including a provider panic, into a Failed result.
func deliver(ctx context.Context, ch Channel, to Recipient, target string, call func(context.Context) (Receipt, error)) (result ChannelResult) {
	start := time.Now()
	result = ChannelResult{
		Channel:   ch,
		Recipient: to.Name,
		Target:    target,
		Outcome:   OutcomeFailed,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomeFailed
			result.ErrorDetail = fmt.Sprintf("provider panic: %v", r)
		}
		result.Duration = time.Since(start)
	}()

	if target == "" {
		result.ErrorDetail = "recipient has no phone number"
		return result
	}

	receipt, err := call(ctx)
	if err != nil {
		result.ErrorDetail = err.Error()
		return result
	}
	if receipt.Reference == "" {
		result.ErrorDetail = "provider response missing reference"
		result.ProviderStatus = receipt.Status
		return result
	}

	result.Outcome = OutcomeDelivered
	result.ProviderReference = receipt.Reference
	result.ProviderStatus = receipt.Status
	result.Simulated = receipt.Simulated
	return result
}
