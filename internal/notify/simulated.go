package notify

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SimulatedSender logs messages instead of sending them. It is used when
// no messaging provider credentials are configured.
type SimulatedSender struct {
	logger zerolog.Logger
}

// NewSimulatedSender creates a simulated message sender.
func NewSimulatedSender(logger zerolog.Logger) *SimulatedSender {
	return &SimulatedSender{logger: logger.With().Str("provider", "simulated").Logger()}
}

// SendMessage implements MessageSender.
func (s *SimulatedSender) SendMessage(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	s.logger.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("body", msg.Body).
		Msg("simulated message")
	return Receipt{Reference: simulatedRef(), Status: "simulated", Simulated: true}, nil
}

// SimulatedCaller logs calls instead of placing them.
type SimulatedCaller struct {
	logger zerolog.Logger
}

// NewSimulatedCaller creates a simulated call placer.
func NewSimulatedCaller(logger zerolog.Logger) *SimulatedCaller {
	return &SimulatedCaller{logger: logger.With().Str("provider", "simulated").Logger()}
}

// PlaceCall implements CallPlacer.
func (s *SimulatedCaller) PlaceCall(ctx context.Context, call Call) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	s.logger.Info().
		Str("from", call.From).
		Str("to", call.To).
		Str("twiml", call.TwiML).
		Msg("simulated call")
	return Receipt{Reference: simulatedRef(), Status: "simulated", Simulated: true}, nil
}

func simulatedRef() string {
	return "SIM-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
