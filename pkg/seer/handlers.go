package seer

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// ElectRequest is the body of POST /elect-leader.
type ElectRequest struct {
	ExcludeReplicas []string `json:"exclude_replicas,omitempty"`
}

// Handler exposes leader election over HTTP.
type Handler struct {
	source   *collector.Client
	registry *metrics.Registry
	logger   logging.Logger
}

// NewHandler creates the HTTP surface backed by a collector client.
func NewHandler(source *collector.Client) *Handler {
	return &Handler{
		source:   source,
		registry: metrics.DefaultRegistry(),
		logger:   logging.With(logging.Component("seer")),
	}
}

// Routes registers the seer endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/elect-leader", h.handleElectLeader)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(), promhttp.HandlerOpts{}))
}

func (h *Handler) handleElectLeader(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ElectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	snap, err := h.source.FetchSnapshot(r.Context())
	if err != nil {
		h.registry.ClusterElectionsTotal.WithLabelValues("error").Inc()
		respondError(w, http.StatusServiceUnavailable, "Metrics collector unavailable: "+err.Error())
		return
	}

	result, err := ElectLeader(snap, req.ExcludeReplicas)
	if err != nil {
		if errors.Is(err, ErrNoCandidates) {
			h.registry.ClusterElectionsTotal.WithLabelValues("no_candidates").Inc()
			respondError(w, http.StatusConflict, "No eligible election candidates")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.registry.ClusterElectionsTotal.WithLabelValues("elected").Inc()
	h.registry.ClusterElectionScore.Set(result.Score)
	h.logger.Info("Leader elected",
		logging.ReplicaID(result.LeaderID),
		logging.Float64("score", result.Score),
		logging.Float64("latency_ms", result.LatencyMs),
		logging.Uint64("replication_lag", result.ReplicationLag))

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
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
