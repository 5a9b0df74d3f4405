package cabinet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
)

func collectorStub(t *testing.T, snap *collector.Snapshot) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}))
}

func TestHandleSelectQuorum(t *testing.T) {
	snap := snapshotOf(
		collector.ReplicaRecord{ReplicaID: "replica1", LatencyMs: 7.4, IsHealthy: true},
		collector.ReplicaRecord{ReplicaID: "replica2", LatencyMs: 6.4, IsHealthy: true},
		collector.ReplicaRecord{ReplicaID: "replica3", LatencyMs: 10.1, ReplicationLag: 2, IsHealthy: true},
	)
	src := collectorStub(t, snap)
	defer src.Close()

	mux := http.NewServeMux()
	NewHandler(collector.NewClient(src.URL, time.Second)).Routes(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/select-quorum",
		strings.NewReader(`{"operation":"write"}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var sel Selection
	if err := json.NewDecoder(rec.Body).Decode(&sel); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if sel.QuorumSize != 2 {
		t.Errorf("Expected quorum size 2, got %d", sel.QuorumSize)
	}
	if len(sel.Quorum) != 2 || sel.Quorum[0] != "replica2" {
		t.Errorf("Expected replica2 first in quorum, got %v", sel.Quorum)
	}
}

func TestHandleSelectQuorumCollectorDown(t *testing.T) {
	src := collectorStub(t, &collector.Snapshot{})
	src.Close() // connection refused from here on

	mux := http.NewServeMux()
	NewHandler(collector.NewClient(src.URL, time.Second)).Routes(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/select-quorum",
		strings.NewReader(`{"operation":"write"}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with collector down, got %d", rec.Code)
	}
}

func TestHandleSelectQuorumRejectsGet(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(collector.NewClient("http://localhost:0", time.Second)).Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/select-quorum", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
