// Package worker consumes SOS events from Pub/Sub and dispatches them.
package worker

import (
	"time"
)

// IntakeConfig holds configuration for the SOS intake subscription.
type IntakeConfig struct {
	// ProjectID is the Google Cloud project of the subscription.
	ProjectID string

	// SubscriptionName is the Pub/Sub subscription carrying SOS events.
	SubscriptionName string

	// MaxOutstandingMessages bounds concurrently handled events.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is how long a message lease may be extended.
	// Default: 2 minutes
	MaxExtension time.Duration

	// HandleTimeout bounds a single dispatch.
	// Default: 30 seconds
	HandleTimeout time.Duration

	// DedupWindow is how long a processed incident id suppresses redeliveries.
	// Default: 10 minutes
	DedupWindow time.Duration
}

// DefaultIntakeConfig returns the default intake configuration.
func DefaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		MaxOutstandingMessages: 10,
		MaxExtension:           2 * time.Minute,
		HandleTimeout:          30 * time.Second,
		DedupWindow:            10 * time.Minute,
	}
}

func (c IntakeConfig) withDefaults() IntakeConfig {
	d := DefaultIntakeConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = d.HandleTimeout
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	return c
}
