package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lifeguard/lifeguard/internal/dispatch"

// Metrics holds the dispatch OpenTelemetry instruments.
type Metrics struct {
	requestTotal   metric.Int64Counter
	duration       metric.Float64Histogram
	channelResults metric.Int64Counter
	tasksInFlight  metric.Int64UpDownCounter
}

// NewMetrics creates the dispatch instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestTotal, err := meter.Int64Counter(
		"dispatch.requests.total",
		metric.WithDescription("Total number of dispatch requests by aggregate status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"dispatch.duration",
		metric.WithDescription("Duration of dispatches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	channelResults, err := meter.Int64Counter(
		"dispatch.channel.results.total",
		metric.WithDescription("Channel task outcomes by channel"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	tasksInFlight, err := meter.Int64UpDownCounter(
		"dispatch.tasks_in_flight",
		metric.WithDescription("Number of channel tasks currently running"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestTotal:   requestTotal,
		duration:       duration,
		channelResults: channelResults,
		tasksInFlight:  tasksInFlight,
	}, nil
}

func (m *Metrics) recordDispatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	ctx := context.TODO()
	attrs := metric.WithAttributes(attribute.String("dispatch.status", status))
	m.requestTotal.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordResult(channel, outcome string) {
	if m == nil {
		return
	}
	m.channelResults.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.String("dispatch.channel", channel),
		attribute.String("dispatch.outcome", outcome),
	))
}

func (m *Metrics) taskStarted() {
	if m != nil {
		m.tasksInFlight.Add(context.TODO(), 1)
	}
}

func (m *Metrics) taskFinished() {
	if m != nil {
		m.tasksInFlight.Add(context.TODO(), -1)
	}
}
