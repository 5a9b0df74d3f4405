package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

// Full write path with the real selection and election logic running
// over one shared snapshot: three healthy replicas with lags [0, 0, 2]
// and latencies [7.4, 6.4, 10.1]ms.
func TestStrongWriteEndToEnd(t *testing.T) {
	h := newHarness()
	h.snapshots.set(healthySnapshot())
	h.coordinator.quorums = &localQuorum{source: h.snapshots}

	// The two best-weighted replicas confirm shortly after the commit
	go func() {
		time.Sleep(25 * time.Millisecond)
		h.fleet["replica1"].setApplied(10)
		h.fleet["replica2"].setApplied(10)
	}()

	result, err := h.coordinator.Execute(context.Background(), QueryRequest{
		Query:       "INSERT INTO orders (total) VALUES (42)",
		Consistency: "STRONG",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "write", result.Kind)
	assert.Equal(t, "STRONG", result.Consistency)
	require.NotNil(t, result.Timestamp)
	assert.Equal(t, uint64(10), *result.Timestamp)
	assert.Equal(t, "master", result.ExecutedOn)

	require.NotNil(t, result.QuorumAchieved)
	assert.True(t, *result.QuorumAchieved)

	// Majority of 3 healthy replicas is 2; the quorum is the two best
	// by weight 1/(latency+lag+1): replica2 (6.4ms) then replica1 (7.4ms)
	assert.Equal(t, []string{"replica2", "replica1"}, result.Quorum)

	// The lagging, slower replica3 never had to confirm
	r3 := h.fleet["replica3"]
	r3.mu.Lock()
	assert.Zero(t, r3.applied)
	r3.mu.Unlock()
}

func TestStrongWriteQuorumTimeoutEndToEnd(t *testing.T) {
	h := newHarness()
	h.snapshots.set(healthySnapshot())
	h.coordinator.quorums = &localQuorum{source: h.snapshots}

	// Only one of the two quorum members ever confirms
	h.fleet["replica2"].setApplied(10)

	result, err := h.coordinator.Execute(context.Background(), QueryRequest{
		Query:       "UPDATE orders SET total = 43",
		Consistency: "STRONG",
	})
	require.NoError(t, err)

	// The write stands even though confirmation timed out
	assert.True(t, result.Success)
	require.NotNil(t, result.QuorumAchieved)
	assert.False(t, *result.QuorumAchieved)
	assert.Contains(t, result.Message, "quorum unconfirmed")

	master := h.fleet["master"]
	master.mu.Lock()
	assert.Equal(t, []uint64{10}, master.writes)
	master.mu.Unlock()
}

// Master loss mid-write: the failover machine elects the best-scored
// replica from the same snapshot and the write lands on it with the
// originally issued timestamp.
func TestReactiveFailoverEndToEnd(t *testing.T) {
	h := newHarness()
	h.snapshots.set(healthySnapshot())
	h.coordinator.quorums = &localQuorum{source: h.snapshots}
	h.coordinator.failover.elector = &localElector{source: h.snapshots}

	h.fleet["master"].writeErr = errors.New("connection refused")

	go func() {
		time.Sleep(25 * time.Millisecond)
		h.fleet["replica1"].setApplied(10)
		h.fleet["replica2"].setApplied(10)
	}()

	result, err := h.coordinator.Execute(context.Background(), QueryRequest{
		Query:       "INSERT INTO orders (total) VALUES (7)",
		Consistency: "STRONG",
	})
	require.NoError(t, err)

	// replica2 scores highest: lowest latency, zero lag
	assert.Equal(t, "replica2", result.ExecutedOn)
	require.NotNil(t, result.Timestamp)
	assert.Equal(t, uint64(10), *result.Timestamp, "retry must reuse the issued timestamp")

	assert.Equal(t, "replica2", h.state.Master().ID)
	assert.Equal(t, PhaseStable, h.coordinator.Failover().Phase())

	demoted, ok := h.state.DemotedMaster()
	require.True(t, ok)
	assert.Equal(t, "master", demoted.ID)

	// A later read must not route to the instance that just became master
	h.fleet["replica2"].rows = nil
	read, err := h.coordinator.Execute(context.Background(),
		QueryRequest{Query: "SELECT total FROM orders"})
	require.NoError(t, err)
	assert.NotEqual(t, "master", read.ExecutedOn)
}

// slowElector stretches the electing phase so concurrent attempts are
// guaranteed to arrive while a run is in flight.
type slowElector struct {
	inner leaderElector
	delay time.Duration
}

func (s *slowElector) ElectLeader(ctx context.Context, exclude []string) (*seer.ElectionResult, error) {
	time.Sleep(s.delay)
	return s.inner.ElectLeader(ctx, exclude)
}

func TestOnlyOneFailoverRunsAtATime(t *testing.T) {
	h := newHarness()
	h.snapshots.set(healthySnapshot())
	h.coordinator.failover.elector = &slowElector{
		inner: &localElector{source: h.snapshots},
		delay: 100 * time.Millisecond,
	}

	fm := h.coordinator.Failover()

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fm.TriggerFailover(context.Background(), "")
			results[i] = err
		}(i)
	}
	wg.Wait()

	completed, rejected := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			completed++
		case errors.Is(err, ErrFailoverInProgress):
			rejected++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, completed, "exactly one failover should complete")
	assert.Equal(t, attempts-1, rejected, "concurrent attempts should be rejected, not queued")
	assert.Equal(t, PhaseStable, fm.Phase())
	assert.Equal(t, "replica2", h.state.Master().ID)
}
