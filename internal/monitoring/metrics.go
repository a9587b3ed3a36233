// Package monitoring tracks per-method latency and error metrics, raises
// threshold alerts, and answers health probes.
package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
)

// methodMetrics accumulates counters for one MCP method. The recent window
// feeds the P95 estimate.
type methodMetrics struct {
	totalRequests  int64
	totalErrors    int64
	totalDuration  time.Duration
	recent         []time.Duration
	recentPos      int
	recentFull     bool
	errorTypes     map[string]int64
	firstRequestAt time.Time
	lastRequestAt  time.Time
}

// MethodSnapshot is the exported view of one method's metrics.
type MethodSnapshot struct {
	Method            string           `json:"method"`
	TotalRequests     int64            `json:"total_requests"`
	TotalErrors       int64            `json:"total_errors"`
	AvgResponseTime   time.Duration    `json:"avg_response_time"`
	P95ResponseTime   time.Duration    `json:"p95_response_time"`
	RequestsPerMinute float64          `json:"requests_per_minute"`
	ErrorRate         float64          `json:"error_rate"`
	ErrorTypes        map[string]int64 `json:"error_types,omitempty"`
}

// SystemSnapshot reports process-level gauges.
type SystemSnapshot struct {
	ConcurrentConnections int     `json:"concurrent_connections"`
	PoolUtilization       float64 `json:"database_pool_utilization"`
	MemoryUsageMB         float64 `json:"memory_usage_mb"`
	Goroutines            int     `json:"goroutines"`
	UptimeSeconds         float64 `json:"uptime_seconds"`
	StartedAt             string  `json:"started_at"`
}

// PoolStats is the slice of pool state the collector needs.
type PoolStats interface {
	InUse() int
	Utilization() float64
}

// Collector records method outcomes and derives snapshots.
type Collector struct {
	mu         sync.Mutex
	methods    map[string]*methodMetrics
	windowSize int
	alerts     *AlertBuffer
	thresholds *config.MonitoringConfig
	pool       PoolStats
	startedAt  time.Time
}

// NewCollector creates a collector with the configured P95 window and alert
// thresholds. pool may be nil when no concurrency pool is wired.
func NewCollector(cfg *config.MonitoringConfig, pool PoolStats) *Collector {
	window := cfg.P95WindowSize
	if window <= 0 {
		window = 100
	}
	bufSize := cfg.AlertBufferSize
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Collector{
		methods:    map[string]*methodMetrics{},
		windowSize: window,
		alerts:     NewAlertBuffer(bufSize),
		thresholds: cfg,
		pool:       pool,
		startedAt:  time.Now(),
	}
}

// SetPool wires the concurrency pool gauge after construction. The MCP
// server owns the pool, so the collector usually exists first.
func (c *Collector) SetPool(pool PoolStats) {
	c.mu.Lock()
	c.pool = pool
	c.mu.Unlock()
}

// Record notes one request outcome and evaluates thresholds.
func (c *Collector) Record(method string, duration time.Duration, err error) {
	c.mu.Lock()
	m := c.methods[method]
	if m == nil {
		m = &methodMetrics{
			recent:         make([]time.Duration, c.windowSize),
			errorTypes:     map[string]int64{},
			firstRequestAt: time.Now(),
		}
		c.methods[method] = m
	}
	m.totalRequests++
	m.totalDuration += duration
	m.lastRequestAt = time.Now()
	m.recent[m.recentPos] = duration
	m.recentPos = (m.recentPos + 1) % c.windowSize
	if m.recentPos == 0 {
		m.recentFull = true
	}
	if err != nil {
		m.totalErrors++
		m.errorTypes[string(srverrors.CodeOf(err))]++
	}
	snap := c.snapshotLocked(method, m)
	c.mu.Unlock()

	c.evaluate(snap)
}

func (m *methodMetrics) window() []time.Duration {
	if m.recentFull {
		out := make([]time.Duration, len(m.recent))
		copy(out, m.recent)
		return out
	}
	out := make([]time.Duration, m.recentPos)
	copy(out, m.recent[:m.recentPos])
	return out
}

func p95(window []time.Duration) time.Duration {
	if len(window) == 0 {
		return 0
	}
	sorted := append([]time.Duration{}, window...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted)*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}

func (c *Collector) snapshotLocked(method string, m *methodMetrics) MethodSnapshot {
	snap := MethodSnapshot{
		Method:          method,
		TotalRequests:   m.totalRequests,
		TotalErrors:     m.totalErrors,
		P95ResponseTime: p95(m.window()),
		ErrorTypes:      map[string]int64{},
	}
	if m.totalRequests > 0 {
		snap.AvgResponseTime = m.totalDuration / time.Duration(m.totalRequests)
		snap.ErrorRate = float64(m.totalErrors) / float64(m.totalRequests)
	}
	if elapsed := m.lastRequestAt.Sub(m.firstRequestAt).Minutes(); elapsed > 0 {
		snap.RequestsPerMinute = float64(m.totalRequests) / elapsed
	} else {
		snap.RequestsPerMinute = float64(m.totalRequests)
	}
	for k, v := range m.errorTypes {
		snap.ErrorTypes[k] = v
	}
	return snap
}

// evaluate raises alerts when a snapshot crosses a configured threshold.
func (c *Collector) evaluate(snap MethodSnapshot) {
	if c.thresholds == nil {
		return
	}
	if limit := c.thresholds.P95ThresholdFor(snap.Method); limit > 0 && snap.P95ResponseTime > limit {
		c.alerts.Add(Alert{
			Type:      AlertLatency,
			Severity:  SeverityWarning,
			Method:    snap.Method,
			Message:   "p95 latency above threshold",
			Value:     snap.P95ResponseTime.Seconds(),
			Threshold: limit.Seconds(),
			Timestamp: time.Now().UTC(),
		})
	}
	// Error-rate alerts need a minimum sample size to avoid firing on the
	// first failed request.
	if snap.TotalRequests >= 10 && c.thresholds.MaxErrorRate > 0 && snap.ErrorRate > c.thresholds.MaxErrorRate {
		c.alerts.Add(Alert{
			Type:      AlertErrorRate,
			Severity:  SeverityCritical,
			Method:    snap.Method,
			Message:   "error rate above threshold",
			Value:     snap.ErrorRate,
			Threshold: c.thresholds.MaxErrorRate,
			Timestamp: time.Now().UTC(),
		})
	}
}

// Methods returns snapshots for every recorded method, sorted by name.
func (c *Collector) Methods() []MethodSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MethodSnapshot, 0, len(c.methods))
	for name, m := range c.methods {
		out = append(out, c.snapshotLocked(name, m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// Method returns the snapshot for one method name.
func (c *Collector) Method(name string) (MethodSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[name]
	if !ok {
		return MethodSnapshot{}, false
	}
	return c.snapshotLocked(name, m), true
}

// System reports process gauges.
func (c *Collector) System() SystemSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := SystemSnapshot{
		MemoryUsageMB: float64(mem.Alloc) / (1024 * 1024),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		StartedAt:     c.startedAt.UTC().Format(time.RFC3339),
	}
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool != nil {
		snap.ConcurrentConnections = pool.InUse()
		snap.PoolUtilization = pool.Utilization()
	}
	return snap
}

// Alerts exposes the alert ring buffer.
func (c *Collector) Alerts() *AlertBuffer {
	return c.alerts
}
