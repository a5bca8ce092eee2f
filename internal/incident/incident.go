// Package incident defines the emergency incident record.
package incident

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lifeguard/lifeguard/pkg/geo"
)

// DefaultType is used when a report does not name the event type.
const DefaultType = "Accident"

// ErrUnknownSeverity is returned by ParseSeverity for unrecognised values.
var ErrUnknownSeverity = errors.New("unknown severity")

// Severity classifies how serious an incident is.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// ParseSeverity converts a case-insensitive severity name. An empty value
// means Severe; "critical" is accepted as an alias of Severe.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "severe", "critical":
		return SeveritySevere, nil
	case "moderate":
		return SeverityModerate, nil
	case "minor":
		return SeverityMinor, nil
	default:
		return "", ErrUnknownSeverity
	}
}

// Incident is a reported emergency. It lives for a single dispatch.
type Incident struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Location  geo.Coordinate `json:"location"`
	Severity  Severity       `json:"severity"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
}

const (
	idPrefix   = "LG-"
	idLength   = 6
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var idPattern = regexp.MustCompile(`^LG-[A-Z0-9]{6}$`)

// NewID generates an incident id of the form LG-XXXXXX.
func NewID() string {
	raw := uuid.New()

	var b strings.Builder
	b.Grow(len(idPrefix) + idLength)
	b.WriteString(idPrefix)
	for i := 0; i < idLength; i++ {
		b.WriteByte(idAlphabet[int(raw[i])%len(idAlphabet)])
	}
	return b.String()
}

// IsGeneratedID reports whether id has the generated LG-XXXXXX format.
func IsGeneratedID(id string) bool {
	return idPattern.MatchString(id)
}
