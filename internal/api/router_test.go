package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeguard/lifeguard/internal/api"
	"github.com/lifeguard/lifeguard/internal/api/handler"
	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/dispatch"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
)

// countingProvider is a notify.MessageSender and notify.CallPlacer that
// fails for the listed targets.
type countingProvider struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (p *countingProvider) SendMessage(_ context.Context, msg notify.Message) (notify.Receipt, error) {
	return p.record(msg.To)
}

func (p *countingProvider) PlaceCall(_ context.Context, call notify.Call) (notify.Receipt, error) {
	return p.record(call.To)
}

func (p *countingProvider) record(to string) (notify.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failFor[to] {
		return notify.Receipt{}, errors.New("21610: unsubscribed recipient")
	}
	return notify.Receipt{Reference: "SM123", Status: "queued"}, nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// stubDispatcher returns a fixed outcome.
type stubDispatcher struct {
	report *dispatch.Report
	err    error
}

func (s stubDispatcher) Dispatch(context.Context, dispatch.Input) (*dispatch.Report, error) {
	return s.report, s.err
}

var testRecipients = []notify.Recipient{
	{Name: "Ambulance Service", PhoneNumber: "+15550001"},
	{Name: "Police Department", PhoneNumber: "+15550002"},
	{Name: "General Hospital", PhoneNumber: "+15550003"},
}

type routerOptions struct {
	dispatcher handler.Dispatcher
	providers  *resilience.Registry
	checks     []handler.DependencyCheck
	mode       *models.DispatchMode
}

func newTestRouter(t *testing.T, provider *countingProvider, opts ...func(*routerOptions)) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	registry := facility.NewRegistry(facility.DefaultFacilities()...)

	o := routerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dispatcher == nil {
		orch, err := dispatch.New(dispatch.Config{
			Lookup:     registry,
			Recipients: testRecipients,
			Adapters: []notify.Adapter{
				notify.NewChatAdapter(provider, "+15559999", notify.WhatsAppPrefix),
				notify.NewTextAdapter(provider, "+15559999"),
				notify.NewVoiceAdapter(provider, "+15559999"),
			},
			Logger: logger,
		})
		require.NoError(t, err)
		o.dispatcher = orch
	}

	return api.NewRouter(api.RouterConfig{
		Version:    "test",
		BuildTime:  "2026-01-01T00:00:00Z",
		Logger:     logger,
		Dispatcher: o.dispatcher,
		Lookup:     registry,
		Providers:  o.providers,
		Checks:     o.checks,

		DispatchMode: o.mode,
	})
}

func postDispatch(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter(t, &countingProvider{}, func(o *routerOptions) {
		o.checks = []handler.DependencyCheck{{Name: "postgres", Check: func(context.Context) error { return nil }}}
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck_FailingDependency(t *testing.T) {
	router := newTestRouter(t, &countingProvider{}, func(o *routerOptions) {
		o.checks = []handler.DependencyCheck{{Name: "postgres", Check: func(context.Context) error {
			return errors.New("connection refused")
		}}}
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "postgres", health.Details["failing"])
}

func TestRouter_SystemStatus(t *testing.T) {
	providers := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "twilio", Registry: providers})
	providers.RecordSuccess("twilio")

	router := newTestRouter(t, &countingProvider{}, func(o *routerOptions) {
		o.providers = providers
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	err := json.Unmarshal(w.Body.Bytes(), &status)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "twilio", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.NotNil(t, status.Providers[0].LastSuccessAt)
}

func TestRouter_SystemStatus_SimulationModeDegrades(t *testing.T) {
	router := newTestRouter(t, &countingProvider{}, func(o *routerOptions) {
		o.mode = &models.DispatchMode{Simulated: true, Recipients: 3, Channels: []string{"chat", "text", "voice"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.Contains(t, status.ActiveDegradationFlags, "simulation-mode")
	require.NotNil(t, status.Dispatch)
	assert.Equal(t, 3, status.Dispatch.Recipients)
	assert.Equal(t, []string{"chat", "text", "voice"}, status.Dispatch.Channels)
}

func TestRouter_Dispatch_Success(t *testing.T) {
	provider := &countingProvider{}
	router := newTestRouter(t, provider)

	w := postDispatch(t, router, "/api/emergency/dispatch",
		`{"latitude":37.7749,"longitude":-122.4194,"event_type":"Accident","severity":"Severe","timestamp":"2026-03-01T10:00:00Z"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 9, provider.count())

	var resp models.DispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "success", resp.Status)
	assert.Regexp(t, `^LG-[A-Z0-9]{6}$`, resp.IncidentID)
	assert.Equal(t, "9 of 9 notifications successfully initiated.", resp.Message)
	assert.Equal(t, "dispatched", resp.Phase)
	assert.Equal(t, 9, resp.BroadcastCount)
	assert.Equal(t, 9, resp.TotalCount)
	assert.Len(t, resp.Results, 9)
	assert.Len(t, resp.InitialDeliveryReport.WhatsApp, 3)
	assert.Len(t, resp.InitialDeliveryReport.SMS, 3)
	assert.Len(t, resp.InitialDeliveryReport.VoiceCall, 3)

	require.Contains(t, resp.Responders, "hospital")
	assert.Equal(t, "HOSP-001", resp.Responders["hospital"].ID)
	assert.Contains(t, resp.Responders, "police")
	assert.Contains(t, resp.Responders, "ambulance")
	require.NotNil(t, resp.PrimaryResponder)
	assert.Equal(t, "hospital", resp.PrimaryResponder.Category)
}

func TestRouter_Dispatch_V1Alias(t *testing.T) {
	provider := &countingProvider{}
	router := newTestRouter(t, provider)

	w := postDispatch(t, router, "/v1/dispatch", `{"latitude":37.7749,"longitude":-122.4194,"id":"LG-CLIENT"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.DispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "LG-CLIENT", resp.IncidentID)
	assert.Equal(t, "Severe", resp.Severity)
	assert.Equal(t, "Accident", resp.EventType)
}

func TestRouter_Dispatch_PartialFailureIs200(t *testing.T) {
	provider := &countingProvider{failFor: map[string]bool{"whatsapp:+15550001": true}}
	router := newTestRouter(t, provider)

	w := postDispatch(t, router, "/api/emergency/dispatch", `{"latitude":37.7749,"longitude":-122.4194}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.DispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "partial_failure", resp.Status)
	assert.Equal(t, 8, resp.BroadcastCount)
	assert.Equal(t, "8 of 9 notifications successfully initiated.", resp.Message)

	failed := resp.InitialDeliveryReport.WhatsApp[0]
	assert.Equal(t, notify.OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.ErrorDetail, "unsubscribed")
}

func TestRouter_Dispatch_AllFailedIs200(t *testing.T) {
	fail := map[string]bool{}
	for _, r := range testRecipients {
		fail[r.PhoneNumber] = true
		fail["whatsapp:"+r.PhoneNumber] = true
	}
	router := newTestRouter(t, &countingProvider{failFor: fail})

	w := postDispatch(t, router, "/api/emergency/dispatch", `{"latitude":37.7749,"longitude":-122.4194}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.DispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "failed", resp.Phase)
	assert.Equal(t, 0, resp.BroadcastCount)
}

func TestRouter_Dispatch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing latitude", body: `{"longitude":-122.4194}`, field: "latitude"},
		{name: "non-numeric longitude", body: `{"latitude":37.7,"longitude":"west"}`, field: "longitude"},
		{name: "latitude out of range", body: `{"latitude":91,"longitude":0}`, field: "latitude"},
		{name: "unknown severity", body: `{"latitude":37.7,"longitude":-122.4,"severity":"apocalyptic"}`, field: "severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &countingProvider{}
			router := newTestRouter(t, provider)

			w := postDispatch(t, router, "/api/emergency/dispatch", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, provider.count(), "no provider calls on rejected input")

			var resp models.DispatchError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.NotEmpty(t, resp.Message)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tt.field, resp.Errors[0].Field)
		})
	}
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	provider := &countingProvider{}
	router := newTestRouter(t, provider)

	for _, body := range []string{`{"latitude":`, ``, `not json`} {
		w := postDispatch(t, router, "/api/emergency/dispatch", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Zero(t, provider.count())
}

func TestRouter_Dispatch_InternalFaultIs500(t *testing.T) {
	router := newTestRouter(t, &countingProvider{}, func(o *routerOptions) {
		o.dispatcher = stubDispatcher{err: &dispatch.InternalFault{Err: errors.New("registry corrupted")}}
	})

	w := postDispatch(t, router, "/api/emergency/dispatch", `{"latitude":37.7749,"longitude":-122.4194}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp models.DispatchError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotContains(t, resp.Message, "registry corrupted")
}

func TestRouter_Dispatch_RejectsNonJSONContentType(t *testing.T) {
	provider := &countingProvider{}
	router := newTestRouter(t, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/emergency/dispatch", bytes.NewBufferString("latitude=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Zero(t, provider.count())
}

func TestRouter_Facilities(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/emergency/facilities?latitude=37.7749&longitude=-122.4194", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.FacilitiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Facilities, 7)
	for i := 1; i < len(resp.Facilities); i++ {
		assert.LessOrEqual(t, resp.Facilities[i-1].DistanceKm, resp.Facilities[i].DistanceKm)
	}
	assert.Len(t, resp.Nearest, 3)
	require.NotNil(t, resp.Primary)
	assert.Equal(t, "hospital", resp.Primary.Category)
}

func TestRouter_Facilities_InvalidQuery(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	for _, q := range []string{"", "?latitude=37.7", "?latitude=abc&longitude=1", "?latitude=95&longitude=1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/emergency/facilities"+q, http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "query %q", q)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	}
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, &countingProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
