package coordinator

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestConsistencyMetricsAggregates(t *testing.T) {
	m := NewConsistencyMetrics()

	m.Record(Eventual, 5*time.Millisecond, false)
	m.Record(Eventual, 15*time.Millisecond, false)
	m.Record(Strong, 100*time.Millisecond, false)
	m.Record(Strong, 200*time.Millisecond, true)

	report := m.Report()

	eventual := report["EVENTUAL"]
	if eventual.Count != 2 || eventual.Failures != 0 {
		t.Errorf("Unexpected eventual bucket: %+v", eventual)
	}
	if eventual.SuccessRate != 1.0 {
		t.Errorf("Expected success rate 1.0, got %f", eventual.SuccessRate)
	}
	if math.Abs(eventual.AverageLatencyMs-10.0) > 0.01 {
		t.Errorf("Expected avg latency 10ms, got %f", eventual.AverageLatencyMs)
	}

	strong := report["STRONG"]
	if strong.Count != 2 || strong.Failures != 1 {
		t.Errorf("Unexpected strong bucket: %+v", strong)
	}
	if strong.SuccessRate != 0.5 {
		t.Errorf("Expected success rate 0.5, got %f", strong.SuccessRate)
	}
}

func TestConsistencyMetricsClear(t *testing.T) {
	m := NewConsistencyMetrics()
	m.Record(Strong, time.Millisecond, false)

	m.Clear()

	if report := m.Report(); len(report) != 0 {
		t.Errorf("Expected empty report after clear, got %+v", report)
	}
}

func TestConsistencyMetricsConcurrent(t *testing.T) {
	m := NewConsistencyMetrics()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Record(Eventual, time.Millisecond, false)
			}
		}()
	}
	wg.Wait()

	if got := m.Report()["EVENTUAL"].Count; got != 800 {
		t.Errorf("Expected 800 records, got %d", got)
	}
}
