package monitoring

import (
	"context"
	"time"

	"openapi-mcp-server/internal/storage"
)

// Status is an aggregate or per-check health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one health probe.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthReport aggregates all probes.
type HealthReport struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyntheticCheck exercises the serving path end to end, typically a search
// for a known term.
type SyntheticCheck func(ctx context.Context) error

// HealthChecker composes database, serving-path and performance probes.
type HealthChecker struct {
	engine    *storage.Engine
	collector *Collector
	synthetic SyntheticCheck
}

// NewHealthChecker wires the composite check. synthetic may be nil.
func NewHealthChecker(engine *storage.Engine, collector *Collector, synthetic SyntheticCheck) *HealthChecker {
	return &HealthChecker{engine: engine, collector: collector, synthetic: synthetic}
}

// Liveness answers immediately without touching the database.
func (h *HealthChecker) Liveness() HealthReport {
	return HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}
}

// Check runs every probe and aggregates the worst status.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: StatusHealthy, Timestamp: time.Now().UTC()}

	report.Checks = append(report.Checks, h.runCheck("database", func() error {
		if err := h.engine.Ping(ctx); err != nil {
			return err
		}
		return h.engine.IntegrityCheck(ctx)
	}))

	if h.synthetic != nil {
		report.Checks = append(report.Checks, h.runCheck("search_path", func() error {
			return h.synthetic(ctx)
		}))
	}

	report.Checks = append(report.Checks, h.performanceCheck())

	for _, c := range report.Checks {
		if c.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
			break
		}
		if c.Status == StatusDegraded {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (h *HealthChecker) runCheck(name string, fn func() error) CheckResult {
	start := time.Now()
	res := CheckResult{Name: name, Status: StatusHealthy}
	if err := fn(); err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	res.Duration = time.Since(start)
	return res
}

// performanceCheck degrades health when method metrics sit above their
// thresholds.
func (h *HealthChecker) performanceCheck() CheckResult {
	start := time.Now()
	res := CheckResult{Name: "performance", Status: StatusHealthy}
	if h.collector == nil {
		res.Duration = time.Since(start)
		return res
	}
	for _, snap := range h.collector.Methods() {
		limit := h.collector.thresholds.P95ThresholdFor(snap.Method)
		if limit > 0 && snap.P95ResponseTime > limit {
			res.Status = StatusDegraded
			res.Message = snap.Method + " p95 above threshold"
		}
		if snap.TotalRequests >= 10 && snap.ErrorRate > h.collector.thresholds.MaxErrorRate {
			res.Status = StatusDegraded
			res.Message = snap.Method + " error rate above threshold"
		}
	}
	res.Duration = time.Since(start)
	return res
}
