// Package dispatch fans incident notifications out to every recipient over
// every channel and aggregates the delivery outcome.
package dispatch

import (
	"context"
	"time"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/incident"
	"github.com/lifeguard/lifeguard/internal/notify"
)

// Status is the aggregate delivery status of a dispatch.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// Phase is the terminal dispatch phase reported to presentation clients.
type Phase string

const (
	PhaseDispatched Phase = "dispatched"
	PhaseFailed     Phase = "failed"
)

// Classify derives the aggregate status from the number of delivered tasks.
func Classify(delivered, total int) Status {
	switch {
	case delivered <= 0 || total <= 0:
		return StatusFailed
	case delivered >= total:
		return StatusSuccess
	default:
		return StatusPartialFailure
	}
}

// Input is an incident report as received from a client. Coordinates are
// pointers so a missing value can be told apart from zero.
type Input struct {
	ID        string
	Latitude  *float64
	Longitude *float64
	EventType string
	Severity  string
	Timestamp string
	Source    string
}

// Report is the outcome of a single dispatch.
type Report struct {
	IncidentID  string                                        `json:"incidentId"`
	Incident    incident.Incident                             `json:"incident"`
	Status      Status                                        `json:"status"`
	Phase       Phase                                         `json:"phase"`
	Results     []notify.ChannelResult                        `json:"results"`
	Assigned    map[facility.Category]facility.RankedFacility `json:"-"`
	Primary     *facility.RankedFacility                      `json:"-"`
	Delivered   int                                           `json:"delivered"`
	Total       int                                           `json:"total"`
	Simulated   bool                                          `json:"simulated"`
	CompletedAt time.Time                                     `json:"completedAt"`
	Duration    time.Duration                                 `json:"-"`
}

// ResultsFor returns the results of one channel in enumeration order.
func (r *Report) ResultsFor(ch notify.Channel) []notify.ChannelResult {
	out := make([]notify.ChannelResult, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Channel == ch {
			out = append(out, res)
		}
	}
	return out
}

// ReportSink receives completed reports, e.g. for presentation clients.
type ReportSink interface {
	Publish(ctx context.Context, report *Report) error
}
