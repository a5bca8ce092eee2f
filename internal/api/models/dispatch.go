package models

import (
	"fmt"

	"github.com/lifeguard/lifeguard/internal/dispatch"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/notify"
)

// DispatchRequest is the body of POST /api/emergency/dispatch.
type DispatchRequest struct {
	ID        string   `json:"id,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	EventType string   `json:"event_type,omitempty"`
	Severity  string   `json:"severity,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// ToInput converts the request into orchestrator input.
func (r DispatchRequest) ToInput() dispatch.Input {
	return dispatch.Input{
		ID:        r.ID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		EventType: r.EventType,
		Severity:  r.Severity,
		Timestamp: r.Timestamp,
		Source:    r.Source,
	}
}

// Responder is an assigned facility.
type Responder struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Name       string  `json:"name"`
	Address    string  `json:"address,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Contact    string  `json:"contact,omitempty"`
	DistanceKm float64 `json:"distanceKm"`
}

// NewResponder converts a ranked facility.
func NewResponder(rf facility.RankedFacility) Responder {
	return Responder{
		ID:         rf.ID,
		Category:   rf.Category.Key(),
		Name:       rf.Name,
		Address:    rf.Address,
		Latitude:   rf.Location.Latitude,
		Longitude:  rf.Location.Longitude,
		Contact:    rf.Contact,
		DistanceKm: rf.DistanceKm,
	}
}

// ChannelReport is the per-channel outcome list keyed the way clients expect.
type ChannelReport struct {
	WhatsApp  []notify.ChannelResult `json:"whatsapp"`
	SMS       []notify.ChannelResult `json:"sms"`
	VoiceCall []notify.ChannelResult `json:"voiceCall"`
}

// DispatchResponse is the 200 body of the dispatch endpoint.
type DispatchResponse struct {
	Status                string                 `json:"status"`
	IncidentID            string                 `json:"incidentId"`
	Message               string                 `json:"message"`
	Phase                 string                 `json:"phase"`
	Severity              string                 `json:"severity"`
	EventType             string                 `json:"event_type"`
	Responders            map[string]Responder   `json:"responders"`
	PrimaryResponder      *Responder             `json:"primaryResponder,omitempty"`
	InitialDeliveryReport ChannelReport          `json:"initial_delivery_report"`
	Results               []notify.ChannelResult `json:"results"`
	BroadcastCount        int                    `json:"broadcast_count"`
	TotalCount            int                    `json:"total_count"`
	Simulated             bool                   `json:"simulated"`
	CompletedAt           Timestamp              `json:"completedAt"`
}

// NewDispatchResponse renders a dispatch report.
func NewDispatchResponse(r *dispatch.Report) DispatchResponse {
	resp := DispatchResponse{
		Status:     string(r.Status),
		IncidentID: r.IncidentID,
		Message:    fmt.Sprintf("%d of %d notifications successfully initiated.", r.Delivered, r.Total),
		Phase:      string(r.Phase),
		Severity:   string(r.Incident.Severity),
		EventType:  r.Incident.Type,
		Responders: make(map[string]Responder, len(r.Assigned)),
		InitialDeliveryReport: ChannelReport{
			WhatsApp:  r.ResultsFor(notify.ChannelChat),
			SMS:       r.ResultsFor(notify.ChannelText),
			VoiceCall: r.ResultsFor(notify.ChannelVoice),
		},
		Results:        r.Results,
		BroadcastCount: r.Delivered,
		TotalCount:     r.Total,
		Simulated:      r.Simulated,
		CompletedAt:    Timestamp(r.CompletedAt),
	}
	if resp.Results == nil {
		resp.Results = []notify.ChannelResult{}
	}
	for cat, rf := range r.Assigned {
		resp.Responders[cat.Key()] = NewResponder(rf)
	}
	if r.Primary != nil {
		p := NewResponder(*r.Primary)
		resp.PrimaryResponder = &p
	}
	return resp
}

// DispatchError is the 400/500 body of the dispatch endpoint.
type DispatchError struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Errors  []dispatch.FieldError `json:"errors,omitempty"`
}

// FacilitiesResponse is the body of GET /api/emergency/facilities.
type FacilitiesResponse struct {
	Latitude   float64              `json:"latitude"`
	Longitude  float64              `json:"longitude"`
	Nearest    map[string]Responder `json:"nearest"`
	Primary    *Responder           `json:"primary,omitempty"`
	Facilities []Responder          `json:"facilities"`
}

// NewFacilitiesResponse renders a ranked facility list.
func NewFacilitiesResponse(lat, lng float64, ranked []facility.RankedFacility, nearest map[facility.Category]facility.RankedFacility) FacilitiesResponse {
	resp := FacilitiesResponse{
		Latitude:   lat,
		Longitude:  lng,
		Nearest:    make(map[string]Responder, len(nearest)),
		Facilities: make([]Responder, 0, len(ranked)),
	}
	for _, rf := range ranked {
		resp.Facilities = append(resp.Facilities, NewResponder(rf))
	}
	for cat, rf := range nearest {
		resp.Nearest[cat.Key()] = NewResponder(rf)
	}
	if p, ok := facility.Primary(nearest); ok {
		r := NewResponder(p)
		resp.Primary = &r
	}
	return resp
}
