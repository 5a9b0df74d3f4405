package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DatabaseCheck probes one database instance.
func DatabaseCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func() Check {
		check := Check{Name: name}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// DependencyCheck probes a peer service's /health endpoint. A
// coordinator without its timestamp issuers cannot accept writes, so
// these feed readiness.
func DependencyCheck(name, healthURL string, client *http.Client) CheckFunc {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return func() Check {
		check := Check{Name: name, Details: map[string]any{"url": healthURL}}

		resp, err := client.Get(healthURL)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("returned %d", resp.StatusCode)
			return check
		}
		check.Status = StatusHealthy
		check.Message = "Reachable"
		return check
	}
}

// SnapshotCheck inspects the freshness of the cluster metrics feed.
// A stale snapshot means reads are being routed on old information.
func SnapshotCheck(age func() (time.Duration, bool), maxAge time.Duration) CheckFunc {
	return func() Check {
		check := Check{Name: "snapshot", Details: make(map[string]any)}

		elapsed, ok := age()
		if !ok {
			check.Status = StatusDegraded
			check.Message = "No snapshot received yet"
			return check
		}

		check.Details["age_seconds"] = elapsed.Seconds()
		if elapsed > maxAge {
			check.Status = StatusDegraded
			check.Message = "Snapshot is stale"
		} else {
			check.Status = StatusHealthy
			check.Message = "Snapshot fresh"
		}
		return check
	}
}

// FailoverCheck reports the failover state machine's phase. Anything
// but stable degrades the process: writes are being rejected or
// retried while it runs.
func FailoverCheck(phase func() string) CheckFunc {
	return func() Check {
		check := Check{Name: "failover", Details: make(map[string]any)}

		current := phase()
		check.Details["phase"] = current

		if current == "stable" {
			check.Status = StatusHealthy
			check.Message = "Topology stable"
		} else {
			check.Status = StatusDegraded
			check.Message = "Failover in progress: " + current
		}
		return check
	}
}

// QuorumCheck reports whether enough replicas are healthy for strong
// writes to confirm.
func QuorumCheck(state func() (healthy, required int)) CheckFunc {
	return func() Check {
		check := Check{Name: "quorum", Details: make(map[string]any)}

		healthy, required := state()
		check.Details["healthy_replicas"] = healthy
		check.Details["required"] = required

		switch {
		case healthy == 0:
			check.Status = StatusUnhealthy
			check.Message = "No healthy replicas"
		case healthy < required:
			check.Status = StatusDegraded
			check.Message = "Below quorum size, strong writes will degrade"
		default:
			check.Status = StatusHealthy
			check.Message = "Quorum available"
		}
		return check
	}
}
