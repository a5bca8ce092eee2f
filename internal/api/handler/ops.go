// Package handler provides HTTP handlers for the LifeGuard API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/api/response"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
)

const readinessTimeout = 2 * time.Second

// DependencyCheck probes one subsystem for the readiness and status endpoints.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []DependencyCheck
	providers *resilience.Registry
	mode      *models.DispatchMode
}

// NewOpsHandler creates a new OpsHandler. providers may be nil.
func NewOpsHandler(version, buildTime string, providers *resilience.Registry, checks ...DependencyCheck) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
		providers: providers,
	}
}

// WithDispatchMode reports the fan-out configuration on the status endpoint.
func (h *OpsHandler) WithDispatchMode(mode *models.DispatchMode) *OpsHandler {
	h.mode = mode
	return h
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	status := http.StatusOK
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"failing": s.Name}
			status = http.StatusServiceUnavailable
			break
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Dispatch:   h.mode,
		Subsystems: h.checkSubsystems(r.Context()),
		Providers:  h.providerStatuses(),
	}

	// Simulated delivery reaches nobody.
	if h.mode != nil && h.mode.Simulated {
		status.Status = models.HealthStatusDegraded
		status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "simulation-mode")
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		// An open breaker degrades dispatch without stopping it.
		if p.Status != models.HealthStatusOK {
			status.Status = worst(status.Status, models.HealthStatusDegraded)
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "provider:"+p.Provider)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Check(cctx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.providers == nil {
		return []models.ProviderStatus{}
	}

	health := h.providers.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(health))
	for _, ph := range health {
		ps := models.ProviderStatus{
			Provider: ph.Name,
			Status:   providerHealthStatus(ph),
		}
		if ph.LastSuccessAt != nil {
			t := models.Timestamp(*ph.LastSuccessAt)
			ps.LastSuccessAt = &t
		}
		if ph.LastFailureAt != nil {
			t := models.Timestamp(*ph.LastFailureAt)
			ps.LastFailureAt = &t
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func providerHealthStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case ph.IsUnhealthy():
		return models.HealthStatusFail
	case ph.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
