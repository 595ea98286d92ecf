// Package handler provides the HTTP handlers of the ops server.
package handler

import (
	"net/http"
	"time"

	"github.com/breatheroute/aqbackfill/internal/api/models"
	"github.com/breatheroute/aqbackfill/internal/api/response"
	"github.com/breatheroute/aqbackfill/internal/backfill"
	"github.com/breatheroute/aqbackfill/internal/provider/resilience"
)

// ProgressSource exposes the live progress of a run.
type ProgressSource interface {
	Snapshot() backfill.ProgressSnapshot
}

// HealthSource exposes the health of the remote sources.
type HealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	progress  ProgressSource
	providers HealthSource
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. progress and providers may be nil.
func NewOpsHandler(version, buildTime string, progress ProgressSource, providers HealthSource) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		progress:  progress,
		providers: providers,
		now:       time.Now,
	}
}

// HealthCheck handles GET /health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// Progress handles GET /v1/progress.
func (h *OpsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		response.ServiceUnavailable(w, r, "no backfill is attached to this server")
		return
	}

	s := h.progress.Snapshot()
	response.JSON(w, r, http.StatusOK, models.Progress{
		RunID:        s.RunID,
		StartedAt:    models.Timestamp(s.StartedAt),
		PointsTotal:  s.PointsTotal,
		PointsDone:   s.PointsDone,
		CurrentPoint: s.CurrentPoint,
		WindowsDone:  s.WindowsDone,
		WindowsTotal: s.WindowsTotal,
		PointRecords: s.PointRecords,
		TotalRecords: s.TotalRecords,
		Checkpoints:  s.Checkpoints,
		Finished:     s.Finished,
		LastError:    s.LastError,
	})
}

// Providers handles GET /v1/providers. The overall status is the worst
// status of any provider.
func (h *OpsHandler) Providers(w http.ResponseWriter, r *http.Request) {
	list := models.ProviderList{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}

	if h.providers != nil {
		for _, p := range h.providers.GetAllHealth() {
			status := providerStatus(p)
			if rank(status) > rank(list.Status) {
				list.Status = status
			}

			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        status,
				CircuitState:  p.CircuitState.String(),
				Calls:         p.Calls,
				Failures:      p.Failures,
				LastSuccessAt: models.TimestampPtr(p.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(p.LastFailureAt),
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			list.Providers = append(list.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, list)
}

func providerStatus(p *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case p.IsHealthy():
		return models.HealthStatusOK
	case p.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func rank(s models.HealthStatus) int {
	switch s {
	case models.HealthStatusDegraded:
		return 1
	case models.HealthStatusFail:
		return 2
	default:
		return 0
	}
}
