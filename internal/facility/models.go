// Package facility provides the emergency facility registry and proximity ranking.
package facility

import (
	"errors"
	"strings"

	"github.com/lifeguard/lifeguard/pkg/geo"
)

// Facility errors.
var (
	ErrUnknownCategory = errors.New("unknown facility category")
	ErrNoFacilities    = errors.New("no facilities available")
)

// Category represents the kind of response a facility provides.
type Category string

const (
	CategoryHospital  Category = "Hospital"
	CategoryPolice    Category = "Police"
	CategoryAmbulance Category = "Ambulance"
)

// Categories lists every known category in reporting order.
var Categories = []Category{CategoryHospital, CategoryPolice, CategoryAmbulance}

// ParseCategory converts a case-insensitive category name.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hospital":
		return CategoryHospital, nil
	case "police":
		return CategoryPolice, nil
	case "ambulance":
		return CategoryAmbulance, nil
	default:
		return "", ErrUnknownCategory
	}
}

// Key returns the lower-case key used in API responses.
func (c Category) Key() string {
	return strings.ToLower(string(c))
}

// Facility represents a response facility that can be assigned to an incident.
type Facility struct {
	ID       string
	Category Category
	Name     string
	Address  string
	Location geo.Coordinate
	Contact  string
}

// RankedFacility is a facility paired with its distance from an incident.
// It is derived per incident and never cached.
type RankedFacility struct {
	Facility
	DistanceKm float64
}
