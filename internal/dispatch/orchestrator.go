package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/incident"
	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

const (
	// DefaultTaskTimeout bounds a single (recipient, channel) task.
	DefaultTaskTimeout = 6 * time.Second

	sinkTimeout = 3 * time.Second
	maxIDLength = 64
)

// Config holds the orchestrator dependencies. Recipients and adapters are
// read-only once the orchestrator is built.
type Config struct {
	Lookup     facility.Lookup
	Recipients []notify.Recipient
	Adapters   []notify.Adapter

	// TaskTimeout bounds each channel task (default: DefaultTaskTimeout).
	TaskTimeout time.Duration

	// MaxConcurrency caps parallel tasks per dispatch (default: all tasks).
	MaxConcurrency int

	// Sink receives every completed report. Optional.
	Sink ReportSink

	// Metrics records dispatch instruments. Optional.
	Metrics *Metrics

	Logger zerolog.Logger
}

// Orchestrator runs dispatches. It holds no per-dispatch state and is safe
// for concurrent use.
type Orchestrator struct {
	lookup         facility.Lookup
	recipients     []notify.Recipient
	adapters       []notify.Adapter
	taskTimeout    time.Duration
	maxConcurrency int
	sink           ReportSink
	metrics        *Metrics
	logger         zerolog.Logger
}

// New creates a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Lookup == nil {
		return nil, ErrNoLookup
	}
	if len(cfg.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(cfg.Adapters) == 0 {
		return nil, ErrNoAdapters
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}

	total := len(cfg.Recipients) * len(cfg.Adapters)
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 || maxConcurrency > total {
		maxConcurrency = total
	}

	recipients := make([]notify.Recipient, len(cfg.Recipients))
	copy(recipients, cfg.Recipients)
	adapters := make([]notify.Adapter, len(cfg.Adapters))
	copy(adapters, cfg.Adapters)

	return &Orchestrator{
		lookup:         cfg.Lookup,
		recipients:     recipients,
		adapters:       adapters,
		taskTimeout:    taskTimeout,
		maxConcurrency: maxConcurrency,
		sink:           cfg.Sink,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// TaskCount returns the number of channel tasks issued per dispatch.
func (o *Orchestrator) TaskCount() int {
	return len(o.recipients) * len(o.adapters)
}

// FanOutBudget returns the longest a fan-out can take: one task timeout per
// wave of MaxConcurrency tasks.
func (o *Orchestrator) FanOutBudget() time.Duration {
	waves := (o.TaskCount() + o.maxConcurrency - 1) / o.maxConcurrency
	return time.Duration(waves) * o.taskTimeout
}

// Dispatch validates the report, assigns the nearest facilities and notifies
// every recipient over every channel. Channel failures are reported in the
// returned report; only a *ValidationError or an *InternalFault is returned
// as an error.
func (o *Orchestrator) Dispatch(ctx context.Context, in Input) (report *Report, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("dispatch panicked")
			o.metrics.recordDispatch("error", time.Since(start))
			report = nil
			err = &InternalFault{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	inc, err := buildIncident(in, start)
	if err != nil {
		o.metrics.recordDispatch("rejected", time.Since(start))
		return nil, err
	}

	logger := o.logger.With().Str("incident_id", inc.ID).Logger()
	logger.Info().
		Float64("latitude", inc.Location.Latitude).
		Float64("longitude", inc.Location.Longitude).
		Str("severity", string(inc.Severity)).
		Str("type", inc.Type).
		Msg("incident received")

	facilities, err := o.lookup.Facilities(ctx, inc.Location)
	if err != nil {
		o.metrics.recordDispatch("error", time.Since(start))
		return nil, &InternalFault{Err: fmt.Errorf("facility lookup: %w", err)}
	}

	assigned := facility.NearestByCategory(inc.Location, facilities)
	var primary *facility.RankedFacility
	if p, ok := facility.Primary(assigned); ok {
		primary = &p
		logger.Info().
			Str("facility_id", p.ID).
			Str("facility", p.Name).
			Float64("distance_km", p.DistanceKm).
			Msg("primary responder assigned")
	} else {
		logger.Warn().Msg("no facility available, dispatching without named responder")
	}

	// The broadcast must finish even if the caller goes away.
	results := o.fanOut(context.WithoutCancel(ctx), inc, primary)

	delivered, simulated := 0, false
	for _, res := range results {
		if res.Delivered() {
			delivered++
			simulated = simulated || res.Simulated
		} else {
			logger.Warn().
				Str("channel", string(res.Channel)).
				Str("recipient", res.Recipient).
				Str("error", res.ErrorDetail).
				Msg("channel delivery failed")
		}
		o.metrics.recordResult(string(res.Channel), string(res.Outcome))
	}

	status := Classify(delivered, len(results))
	phase := PhaseDispatched
	if status == StatusFailed {
		phase = PhaseFailed
	}

	report = &Report{
		IncidentID:  inc.ID,
		Incident:    inc,
		Status:      status,
		Phase:       phase,
		Results:     results,
		Assigned:    assigned,
		Primary:     primary,
		Delivered:   delivered,
		Total:       len(results),
		Simulated:   simulated,
		CompletedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}

	o.metrics.recordDispatch(string(status), report.Duration)
	logger.Info().
		Str("status", string(status)).
		Int("delivered", delivered).
		Int("total", report.Total).
		Bool("simulated", simulated).
		Dur("duration", report.Duration).
		Msg("dispatch completed")

	o.publish(ctx, report, logger)

	return report, nil
}

// fanOut runs every (recipient, channel) task and waits for all of them.
// Results are stored recipient-major, channel-minor.
func (o *Orchestrator) fanOut(ctx context.Context, inc incident.Incident, primary *facility.RankedFacility) []notify.ChannelResult {
	results := make([]notify.ChannelResult, len(o.recipients)*len(o.adapters))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)

	for i, recipient := range o.recipients {
		for j, adapter := range o.adapters {
			slot := i*len(o.adapters) + j
			g.Go(func() error {
				results[slot] = o.runTask(ctx, adapter, recipient, inc, primary)
				return nil
			})
		}
	}

	// Tasks never return errors.
	_ = g.Wait()

	return results
}

// runTask bounds one adapter call by the task timeout. An adapter that
// ignores its context is abandoned and reported as failed.
func (o *Orchestrator) runTask(ctx context.Context, adapter notify.Adapter, to notify.Recipient, inc incident.Incident, primary *facility.RankedFacility) notify.ChannelResult {
	o.metrics.taskStarted()
	defer o.metrics.taskFinished()

	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	channel := adapter.Channel()
	done := make(chan notify.ChannelResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failedResult(channel, to, fmt.Sprintf("adapter panic: %v", r))
			}
		}()
		done <- adapter.Send(taskCtx, to, inc, primary)
	}()

	select {
	case res := <-done:
		if taskCtx.Err() != nil && !res.Delivered() && res.ErrorDetail == "" {
			res.ErrorDetail = timeoutDetail(o.taskTimeout)
		}
		return res
	case <-taskCtx.Done():
		return failedResult(channel, to, timeoutDetail(o.taskTimeout))
	}
}

func (o *Orchestrator) publish(ctx context.Context, report *Report, logger zerolog.Logger) {
	if o.sink == nil {
		return
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := o.sink.Publish(sinkCtx, report); err != nil {
		logger.Warn().Err(err).Msg("failed to publish dispatch report")
	}
}

func failedResult(channel notify.Channel, to notify.Recipient, detail string) notify.ChannelResult {
	return notify.ChannelResult{
		Channel:     channel,
		Recipient:   to.Name,
		Target:      to.PhoneNumber,
		Outcome:     notify.OutcomeFailed,
		ErrorDetail: detail,
	}
}

func timeoutDetail(d time.Duration) string {
	return "timed out after " + d.String()
}

// buildIncident validates the input and constructs the incident record.
func buildIncident(in Input, now time.Time) (incident.Incident, error) {
	verr := &ValidationError{}

	checkCoordinate(verr, "latitude", in.Latitude, 90)
	checkCoordinate(verr, "longitude", in.Longitude, 180)

	severity, err := incident.ParseSeverity(in.Severity)
	if err != nil {
		verr.add("severity", "must be one of Minor, Moderate, Severe")
	}

	id := strings.TrimSpace(in.ID)
	if len(id) > maxIDLength {
		verr.add("id", "must be at most %d characters", maxIDLength)
	}

	if len(verr.Fields) > 0 {
		return incident.Incident{}, verr
	}

	if id == "" {
		id = incident.NewID()
	}

	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		eventType = incident.DefaultType
	}

	timestamp := strings.TrimSpace(in.Timestamp)
	if timestamp == "" {
		timestamp = now.UTC().Format(time.RFC3339)
	}

	return incident.Incident{
		ID:        id,
		Type:      eventType,
		Location:  geo.Coordinate{Latitude: *in.Latitude, Longitude: *in.Longitude},
		Severity:  severity,
		Timestamp: timestamp,
		Source:    strings.TrimSpace(in.Source),
	}, nil
}

func checkCoordinate(verr *ValidationError, field string, v *float64, limit float64) {
	switch {
	case v == nil:
		verr.add(field, "is required")
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		verr.add(field, "must be a finite number")
	case *v < -limit || *v > limit:
		verr.add(field, "must be between %v and %v", -limit, limit)
	}
}
