package notify

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/incident"
)

// ChatBody renders the rich chat notification.
func ChatBody(inc incident.Incident, assigned *facility.RankedFacility) string {
	var b strings.Builder
	b.WriteString("🚨 *LIFEGUARD SOS*\n")
	fmt.Fprintf(&b, "ID: %s\n", inc.ID)
	fmt.Fprintf(&b, "Type: %s\n", inc.Type)
	fmt.Fprintf(&b, "Severity: %s\n", inc.Severity)
	fmt.Fprintf(&b, "Site: %s\n", inc.Location.MapsLink())
	b.WriteString("\n*ASSIGNED RESPONDER*\n")
	if assigned == nil {
		b.WriteString("Nearest available unit is being contacted.")
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %s\n", assigned.Category, assigned.Name)
	fmt.Fprintf(&b, "Dist: %.2fkm\n", assigned.DistanceKm)
	fmt.Fprintf(&b, "Route: %s", assigned.Location.MapsLink())
	return b.String()
}

// TextBody renders the single-line text notification.
func TextBody(inc incident.Incident, assigned *facility.RankedFacility) string {
	responder := "nearest unit"
	if assigned != nil {
		responder = assigned.Name
	}
	return fmt.Sprintf("LIFEGUARD SOS [%s]: %s %s at %.4f,%.4f. Assigned: %s. TRACK: %s",
		inc.ID, inc.Severity, inc.Type,
		inc.Location.Latitude, inc.Location.Longitude,
		responder, inc.Location.MapsLink(),
	)
}

// VoiceScript renders the spoken dispatch script.
func VoiceScript(inc incident.Incident, assigned *facility.RankedFacility) string {
	var b strings.Builder
	b.WriteString("Attention. Life Guard A.I. emergency detected. ")
	fmt.Fprintf(&b, "Incident %s. ", spell(inc.ID))
	fmt.Fprintf(&b, "%s %s. ", inc.Severity, inc.Type)
	fmt.Fprintf(&b, "Location latitude %.3f, longitude %.3f. ", inc.Location.Latitude, inc.Location.Longitude)
	if assigned != nil {
		fmt.Fprintf(&b, "Primary responder assigned: %s, %s. Distance is %.1f kilometers. ",
			assigned.Name, strings.ToLower(string(assigned.Category)), assigned.DistanceKm)
	} else {
		b.WriteString("The nearest available unit is being contacted. ")
	}
	b.WriteString("Location details have been sent by message. Please respond immediately.")
	return b.String()
}

// VoiceTwiML wraps the voice script in a TwiML document.
func VoiceTwiML(inc incident.Incident, assigned *facility.RankedFacility) string {
	var buf bytes.Buffer
	buf.WriteString(`<Response><Say voice="alice">`)
	// EscapeText only fails on writer errors, which bytes.Buffer never returns.
	_ = xml.EscapeText(&buf, []byte(VoiceScript(inc, assigned)))
	buf.WriteString(`</Say></Response>`)
	return buf.String()
}

// spell spaces out an identifier so a speech engine reads it character by character.
func spell(id string) string {
	parts := make([]string, 0, len(id))
	for _, r := range id {
		if r == '-' {
			parts = append(parts, "dash")
			continue
		}
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}
