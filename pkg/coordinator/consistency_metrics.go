package coordinator

import (
	"sync"
	"time"
)

// levelStats is the running aggregate for one consistency level.
type levelStats struct {
	count          uint64
	failures       uint64
	totalLatencyMs float64
}

// LevelReport is the externally visible aggregate for one level.
type LevelReport struct {
	Count            uint64  `json:"count"`
	Failures         uint64  `json:"failures"`
	SuccessRate      float64 `json:"success_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// ConsistencyMetrics aggregates per-level write outcomes. Writes run
// concurrently, so all mutation happens under one lock. Only an
// explicit administrative clear resets it.
type ConsistencyMetrics struct {
	mu     sync.Mutex
	levels map[string]*levelStats
}

// NewConsistencyMetrics creates an empty aggregate.
func NewConsistencyMetrics() *ConsistencyMetrics {
	return &ConsistencyMetrics{levels: make(map[string]*levelStats)}
}

// Record folds one completed write into its level's bucket.
func (m *ConsistencyMetrics) Record(level ConsistencyLevel, latency time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := level.String()
	stats := m.levels[key]
	if stats == nil {
		stats = &levelStats{}
		m.levels[key] = stats
	}

	stats.count++
	stats.totalLatencyMs += float64(latency.Microseconds()) / 1000.0
	if failed {
		stats.failures++
	}
}

// Report returns the current aggregates keyed by level name.
func (m *ConsistencyMetrics) Report() map[string]LevelReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]LevelReport, len(m.levels))
	for key, stats := range m.levels {
		report := LevelReport{
			Count:    stats.count,
			Failures: stats.failures,
		}
		if stats.count > 0 {
			report.SuccessRate = float64(stats.count-stats.failures) / float64(stats.count)
			report.AverageLatencyMs = stats.totalLatencyMs / float64(stats.count)
		}
		out[key] = report
	}
	return out
}

// Clear drops all aggregates. Administrative use only.
func (m *ConsistencyMetrics) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = make(map[string]*levelStats)
}
