package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const runtimeMetricsFileName = "runtime_metrics.json"

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// RuntimeSnapshot contains aggregated runtime metrics for the request API
// and for request lifecycle outcomes.
type RuntimeSnapshot struct {
	UpdatedAt time.Time      `json:"updated_at"`
	HTTP      HTTPStats      `json:"http"`
	Lifecycle LifecycleStats `json:"lifecycle"`
}

// HTTPStats tracks API request metrics.
type HTTPStats struct {
	Total             int64 `json:"total"`
	Errors            int64 `json:"errors"`
	Unauthorized      int64 `json:"unauthorized"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
	MaxLatencyMs      int64 `json:"max_latency_ms"`
	LastLatencyMs     int64 `json:"last_latency_ms"`
	P95ProxyLatencyMs int64 `json:"p95_proxy_latency_ms"`
}

// ErrorRatio returns errors/total in [0,1].
func (h HTTPStats) ErrorRatio() float64 {
	if h.Total <= 0 {
		return 0
	}
	return float64(h.Errors) / float64(h.Total)
}

// AvgLatencyMs returns average latency in milliseconds.
func (h HTTPStats) AvgLatencyMs() float64 {
	if h.Total <= 0 {
		return 0
	}
	return float64(h.TotalLatencyMs) / float64(h.Total)
}

// LifecycleStats tracks access request outcomes.
type LifecycleStats struct {
	Created  int64 `json:"created"`
	Approved int64 `json:"approved"`
	Denied   int64 `json:"denied"`
	Expired  int64 `json:"expired"`
}

// ApprovalRatio returns approved/created in [0,1].
func (l LifecycleStats) ApprovalRatio() float64 {
	if l.Created <= 0 {
		return 0
	}
	return float64(l.Approved) / float64(l.Created)
}

// HasData reports whether any runtime metrics were recorded.
func (s RuntimeSnapshot) HasData() bool {
	return s.HTTP.Total > 0 || s.Lifecycle.Created > 0
}

// RuntimeMetrics records and persists runtime metrics.
type RuntimeMetrics struct {
	path string

	mu      sync.Mutex
	snap    RuntimeSnapshot
	buckets []int64
}

// NewRuntimeMetrics creates a metrics recorder rooted at <dataDir>/runtime_metrics.json.
func NewRuntimeMetrics(dataDir string) *RuntimeMetrics {
	return &RuntimeMetrics{
		path:    runtimeMetricsPath(dataDir),
		buckets: make([]int64, len(latencyBucketUpperBoundsMs)+1),
	}
}

// Snapshot returns the latest in-memory snapshot.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// RecordHTTPRequest updates API metrics and persists the snapshot.
func (m *RuntimeMetrics) RecordHTTPRequest(duration time.Duration, statusCode int) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	now := time.Now().UTC()
	latencyMs := duration.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	m.mu.Lock()
	m.snap.UpdatedAt = now
	m.snap.HTTP.Total++
	m.snap.HTTP.TotalLatencyMs += latencyMs
	m.snap.HTTP.LastLatencyMs = latencyMs
	if latencyMs > m.snap.HTTP.MaxLatencyMs {
		m.snap.HTTP.MaxLatencyMs = latencyMs
	}
	if statusCode >= 500 {
		m.snap.HTTP.Errors++
	}
	if statusCode == 401 {
		m.snap.HTTP.Unauthorized++
	}

	m.buckets[latencyBucketIndex(latencyMs)]++
	m.snap.HTTP.P95ProxyLatencyMs = p95ProxyFromBuckets(m.buckets, m.snap.HTTP.Total)

	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistRuntimeSnapshot(m.path, snapshot)
}

// RecordLifecycleEvent updates request outcome counters and persists the
// snapshot. Unknown event types are ignored.
func (m *RuntimeMetrics) RecordLifecycleEvent(eventType string) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	now := time.Now().UTC()

	m.mu.Lock()
	m.snap.UpdatedAt = now
	switch eventType {
	case "request.created":
		m.snap.Lifecycle.Created++
	case "request.approved":
		m.snap.Lifecycle.Approved++
	case "request.denied":
		m.snap.Lifecycle.Denied++
	case "request.expired":
		m.snap.Lifecycle.Expired++
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistRuntimeSnapshot(m.path, snapshot)
}

// ReadRuntimeSnapshot reads the persisted snapshot from the data dir.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadRuntimeSnapshot(dataDir string) (RuntimeSnapshot, error) {
	path := runtimeMetricsPath(dataDir)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeSnapshot{}, nil
		}
		return RuntimeSnapshot{}, fmt.Errorf("read runtime metrics: %w", err)
	}

	var snap RuntimeSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return RuntimeSnapshot{}, fmt.Errorf("decode runtime metrics: %w", err)
	}
	return snap, nil
}

func runtimeMetricsPath(dataDir string) string {
	return filepath.Join(dataDir, runtimeMetricsFileName)
}

func persistRuntimeSnapshot(path string, snapshot RuntimeSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runtime metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode runtime metrics: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write runtime metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename runtime metrics file: %w", err)
	}
	return nil
}

func latencyBucketIndex(latencyMs int64) int {
	for i, upper := range latencyBucketUpperBoundsMs {
		if latencyMs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsMs)
}

func p95ProxyFromBuckets(buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsMs) {
			return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
		}
		return latencyBucketUpperBoundsMs[i]
	}
	return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
}
