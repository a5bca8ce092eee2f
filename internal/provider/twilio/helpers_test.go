package twilio_test

import (
	"github.com/lifeguard/lifeguard/internal/incident"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

func testIncident() incident.Incident {
	return incident.Incident{
		ID:       "LG-TEST01",
		Type:     "Accident",
		Location: geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194},
		Severity: incident.SeveritySevere,
	}
}
