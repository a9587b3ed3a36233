package monitoring

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"openapi-mcp-server/internal/logging"
)

// API serves the monitoring HTTP surface: liveness, composite health,
// metrics, alerts and the progress websocket.
type API struct {
	health    *HealthChecker
	collector *Collector
	hub       *ProgressHub
	logger    logging.Logger
}

// NewAPI wires the monitoring endpoints.
func NewAPI(health *HealthChecker, collector *Collector, hub *ProgressHub, logger logging.Logger) *API {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &API{health: health, collector: collector, hub: hub, logger: logger.WithComponent("monitoring-api")}
}

// Router builds the chi router for the monitoring surface.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", a.handleLiveness)
	r.Get("/health", a.handleHealth)
	r.Get("/metrics", a.handleMetrics)
	r.Get("/alerts", a.handleAlerts)
	if a.hub != nil {
		r.Get("/ws/progress", a.hub.ServeHTTP)
	}
	return r
}

func (a *API) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.health.Liveness())
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := a.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	a.writeJSON(w, status, report)
}

func (a *API) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"methods": a.collector.Methods(),
		"system":  a.collector.System(),
	})
}

func (a *API) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": a.collector.Alerts().Recent(),
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", "error", err)
	}
}
