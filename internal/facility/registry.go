package facility

import (
	"context"

	"github.com/lifeguard/lifeguard/pkg/geo"
)

// Lookup returns the candidate facilities for an incident location.
type Lookup interface {
	Facilities(ctx context.Context, origin geo.Coordinate) ([]Facility, error)
}

// Registry is a fixed, read-only set of facilities kept in registration order.
// It is safe for concurrent use.
type Registry struct {
	facilities []Facility
}

// NewRegistry creates a registry holding a copy of the given facilities.
func NewRegistry(facilities ...Facility) *Registry {
	cp := make([]Facility, len(facilities))
	copy(cp, facilities)
	return &Registry{facilities: cp}
}

// AllFacilities returns every registered facility in registration order.
func (r *Registry) AllFacilities() []Facility {
	cp := make([]Facility, len(r.facilities))
	copy(cp, r.facilities)
	return cp
}

// Len returns the number of registered facilities.
func (r *Registry) Len() int {
	return len(r.facilities)
}

// Facilities implements Lookup. The registry is location independent.
func (r *Registry) Facilities(_ context.Context, _ geo.Coordinate) ([]Facility, error) {
	return r.AllFacilities(), nil
}

// DefaultFacilities returns the built-in verified facility dataset (San Francisco).
func DefaultFacilities() []Facility {
	return []Facility{
		// Hospitals
		{ID: "HOSP-001", Category: CategoryHospital, Name: "City General Trauma Center", Location: geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194}, Contact: "+15550101"},
		{ID: "HOSP-002", Category: CategoryHospital, Name: "St. Jude Medical Hub", Location: geo.Coordinate{Latitude: 37.7858, Longitude: -122.4008}, Contact: "+15550102"},
		{ID: "HOSP-003", Category: CategoryHospital, Name: "Metropolitan Surgical Wing", Location: geo.Coordinate{Latitude: 37.7510, Longitude: -122.4476}, Contact: "+15550103"},

		// Police stations
		{ID: "POL-001", Category: CategoryPolice, Name: "Central Precinct Alpha", Location: geo.Coordinate{Latitude: 37.7739, Longitude: -122.4312}, Contact: "+15550201"},
		{ID: "POL-002", Category: CategoryPolice, Name: "South District Command", Location: geo.Coordinate{Latitude: 37.7214, Longitude: -122.4725}, Contact: "+15550202"},

		// Ambulance hubs
		{ID: "AMB-001", Category: CategoryAmbulance, Name: "Rapid Response Hub East", Location: geo.Coordinate{Latitude: 37.7946, Longitude: -122.3999}, Contact: "+15550301"},
		{ID: "AMB-002", Category: CategoryAmbulance, Name: "Emergency Transit West", Location: geo.Coordinate{Latitude: 37.7694, Longitude: -122.4862}, Contact: "+15550302"},
	}
}
