package claude_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/facility/claude"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         claude.DefaultModel,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"usage": map[string]any{"input_tokens": 42, "output_tokens": 128},
	}
}

func newTestFinder(t *testing.T, handler http.HandlerFunc) *claude.Finder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return claude.New(claude.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})
}

func TestFinder_Facilities(t *testing.T) {
	answer := "```json\n" + `[
		{"name": "SF General", "type": "Hospital", "address": "1001 Potrero Ave", "latitude": 37.7557, "longitude": -122.4046, "phone": "+14152068000"},
		{"name": "Mission Station", "type": "police", "address": "630 Valencia St", "latitude": 37.7628, "longitude": -122.4220, "phone": "+14155585400"},
		{"name": "Station 7", "type": "Ambulance", "address": "2300 Folsom St", "latitude": 37.7604, "longitude": -122.4147, "phone": ""},
		{"name": "Fire Station 1", "type": "Fire", "address": "935 Folsom St", "latitude": 37.7784, "longitude": -122.4034},
		{"name": "Nowhere Clinic", "type": "Hospital", "latitude": 123.0, "longitude": 0}
	]` + "\n```"

	var gotBody map[string]any
	finder := newTestFinder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(answer))
	})

	got, err := finder.Facilities(context.Background(), geo.Coordinate{Latitude: 37.76, Longitude: -122.41})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "AI-HOSPITAL-1", got[0].ID)
	assert.Equal(t, facility.CategoryHospital, got[0].Category)
	assert.Equal(t, "1001 Potrero Ave", got[0].Address)
	assert.Equal(t, "AI-POLICE-1", got[1].ID)
	assert.Equal(t, facility.CategoryPolice, got[1].Category)
	assert.Equal(t, "AI-AMBULANCE-1", got[2].ID)
	assert.InDelta(t, 37.7604, got[2].Location.Latitude, 1e-9)

	assert.Equal(t, claude.DefaultModel, gotBody["model"])
	assert.NotEmpty(t, gotBody["system"])
}

func TestFinder_MalformedAnswer(t *testing.T) {
	finder := newTestFinder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse("I cannot help with locating facilities."))
	})

	_, err := finder.Facilities(context.Background(), geo.Coordinate{Latitude: 1, Longitude: 2})
	assert.ErrorIs(t, err, claude.ErrMalformedResponse)
}

func TestFinder_UpstreamError(t *testing.T) {
	finder := newTestFinder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	})

	_, err := finder.Facilities(context.Background(), geo.Coordinate{Latitude: 1, Longitude: 2})
	assert.Error(t, err)
}

func TestFinder_FallsBackThroughLookup(t *testing.T) {
	finder := newTestFinder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	lookup := &facility.FallbackLookup{
		Primary:  finder,
		Fallback: facility.NewRegistry(facility.DefaultFacilities()...),
		Logger:   zerolog.Nop(),
	}

	got, err := lookup.Facilities(context.Background(), geo.Coordinate{Latitude: 37.77, Longitude: -122.42})
	require.NoError(t, err)
	assert.Len(t, got, 7)
}
