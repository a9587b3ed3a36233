package monitoring

import (
	"sync"
	"time"
)

// AlertType names what crossed a threshold.
type AlertType string

const (
	AlertLatency   AlertType = "latency"
	AlertErrorRate AlertType = "error_rate"
	AlertHealth    AlertType = "health"
)

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert records one threshold crossing.
type Alert struct {
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Method    string    `json:"method,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertBuffer is a fixed-size ring. When full, the oldest alert is
// overwritten.
type AlertBuffer struct {
	mu    sync.Mutex
	ring  []Alert
	pos   int
	count int
}

// NewAlertBuffer creates a ring holding at most size alerts.
func NewAlertBuffer(size int) *AlertBuffer {
	return &AlertBuffer{ring: make([]Alert, size)}
}

// Add appends an alert, evicting the oldest when full.
func (b *AlertBuffer) Add(a Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.pos] = a
	b.pos = (b.pos + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
}

// Recent returns alerts newest first.
func (b *AlertBuffer) Recent() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Alert, 0, b.count)
	for i := 1; i <= b.count; i++ {
		idx := (b.pos - i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}
	return out
}

// Len reports the number of retained alerts.
func (b *AlertBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
