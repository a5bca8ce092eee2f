package facility

import (
	"sort"

	"github.com/lifeguard/lifeguard/pkg/geo"
)

// primaryOrder is the preference order for the responder named in notifications.
var primaryOrder = []Category{CategoryHospital, CategoryAmbulance, CategoryPolice}

// Rank returns the facilities ordered by ascending distance from origin.
// Facilities at equal distance keep their input order.
func Rank(origin geo.Coordinate, facilities []Facility) []RankedFacility {
	ranked := make([]RankedFacility, 0, len(facilities))
	for _, f := range facilities {
		ranked = append(ranked, RankedFacility{
			Facility:   f,
			DistanceKm: geo.Distance(origin, f.Location),
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].DistanceKm < ranked[b].DistanceKm
	})

	return ranked
}

// NearestByCategory returns the nearest facility for every category present
// in facilities. Categories with no facility have no entry.
func NearestByCategory(origin geo.Coordinate, facilities []Facility) map[Category]RankedFacility {
	nearest := make(map[Category]RankedFacility)
	for _, f := range facilities {
		dist := geo.Distance(origin, f.Location)
		if current, ok := nearest[f.Category]; ok && current.DistanceKm <= dist {
			continue
		}
		nearest[f.Category] = RankedFacility{Facility: f, DistanceKm: dist}
	}
	return nearest
}

// Primary picks the responder named in notifications: the nearest hospital,
// falling back to an ambulance hub and then a police station.
func Primary(assigned map[Category]RankedFacility) (RankedFacility, bool) {
	for _, cat := range primaryOrder {
		if rf, ok := assigned[cat]; ok {
			return rf, true
		}
	}
	return RankedFacility{}, false
}
