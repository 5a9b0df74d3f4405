package collector

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// Handler exposes the collector's snapshots over HTTP.
type Handler struct {
	collector *Collector
}

// NewHandler creates the HTTP surface for a collector.
func NewHandler(c *Collector) *Handler {
	return &Handler{collector: c}
}

// Routes registers the collector endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", h.handleSnapshot)
	mux.HandleFunc("/metrics/", h.handleReplica)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(), promhttp.HandlerOpts{}))
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := h.collector.GetSnapshot()
	if snap == nil {
		respondError(w, http.StatusServiceUnavailable, "No snapshot collected yet")
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleReplica(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	replicaID := strings.TrimPrefix(r.URL.Path, "/metrics/")
	if replicaID == "" {
		respondError(w, http.StatusBadRequest, "Replica id required")
		return
	}

	snap := h.collector.GetSnapshot()
	if snap == nil {
		respondError(w, http.StatusServiceUnavailable, "No snapshot collected yet")
		return
	}

	record, ok := snap.Get(replicaID)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown replica: "+replicaID)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.collector.GetSnapshot()

	status := "starting"
	healthy := 0
	total := 0
	if snap != nil {
		status = "healthy"
		total = len(snap.Replicas)
		healthy = len(snap.Healthy())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"replicas_total":   total,
		"replicas_healthy": healthy,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}
