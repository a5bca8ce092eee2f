// Package broadcast publishes completed dispatch reports to Pub/Sub for
// presentation clients such as the responder portal.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/dispatch"
	"github.com/lifeguard/lifeguard/internal/incident"
	"github.com/lifeguard/lifeguard/internal/notify"
)

// Publisher sends a single message and returns the server-assigned id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// ReportEvent is the published form of a dispatch report.
type ReportEvent struct {
	IncidentID       string                      `json:"incidentId"`
	Status           string                      `json:"status"`
	Phase            string                      `json:"phase"`
	Incident         incident.Incident           `json:"incident"`
	PrimaryResponder *models.Responder           `json:"primaryResponder,omitempty"`
	Responders       map[string]models.Responder `json:"responders"`
	Results          []notify.ChannelResult      `json:"results"`
	Delivered        int                         `json:"delivered"`
	Total            int                         `json:"total"`
	Simulated        bool                        `json:"simulated"`
	CompletedAt      time.Time                   `json:"completedAt"`
}

// NewReportEvent converts a dispatch report.
func NewReportEvent(r *dispatch.Report) ReportEvent {
	ev := ReportEvent{
		IncidentID:  r.IncidentID,
		Status:      string(r.Status),
		Phase:       string(r.Phase),
		Incident:    r.Incident,
		Responders:  make(map[string]models.Responder, len(r.Assigned)),
		Results:     r.Results,
		Delivered:   r.Delivered,
		Total:       r.Total,
		Simulated:   r.Simulated,
		CompletedAt: r.CompletedAt,
	}
	for cat, rf := range r.Assigned {
		ev.Responders[cat.Key()] = models.NewResponder(rf)
	}
	if r.Primary != nil {
		p := models.NewResponder(*r.Primary)
		ev.PrimaryResponder = &p
	}
	return ev
}

// ReportPublisher implements dispatch.ReportSink.
type ReportPublisher struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewReportPublisher creates a report publisher.
func NewReportPublisher(p Publisher, logger zerolog.Logger) *ReportPublisher {
	return &ReportPublisher{publisher: p, logger: logger}
}

// Publish implements dispatch.ReportSink.
func (p *ReportPublisher) Publish(ctx context.Context, report *dispatch.Report) error {
	data, err := json.Marshal(NewReportEvent(report))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	id, err := p.publisher.Publish(ctx, data, map[string]string{
		"incident_id": report.IncidentID,
		"status":      string(report.Status),
		"phase":       string(report.Phase),
	})
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	p.logger.Debug().
		Str("incident_id", report.IncidentID).
		Str("message_id", id).
		Msg("dispatch report published")
	return nil
}

// TopicPublisher publishes to a Pub/Sub topic.
type TopicPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// TopicConfig holds configuration for the Pub/Sub topic publisher.
type TopicConfig struct {
	ProjectID string
	TopicName string
}

// NewTopicPublisher creates a Pub/Sub publisher for the configured topic.
func NewTopicPublisher(ctx context.Context, cfg TopicConfig) (*TopicPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.TopicName)
	publisher.PublishSettings.DelayThreshold = 10 * time.Millisecond

	return &TopicPublisher{client: client, publisher: publisher}, nil
}

// Publish implements Publisher.
func (t *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

// Close flushes pending messages and closes the client.
func (t *TopicPublisher) Close() error {
	t.publisher.Stop()
	return t.client.Close()
}
