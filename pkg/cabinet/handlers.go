package cabinet

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// SelectRequest is the body of POST /select-quorum.
type SelectRequest struct {
	Operation string `json:"operation"`
}

// Handler exposes quorum selection over HTTP.
type Handler struct {
	source *collector.Client
	logger logging.Logger
}

// NewHandler creates the HTTP surface backed by a collector client.
func NewHandler(source *collector.Client) *Handler {
	return &Handler{
		source: source,
		logger: logging.With(logging.Component("cabinet")),
	}
}

// Routes registers the cabinet endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/select-quorum", h.handleSelectQuorum)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(), promhttp.HandlerOpts{}))
}

func (h *Handler) handleSelectQuorum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	snap, err := h.source.FetchSnapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Metrics collector unavailable: "+err.Error())
		return
	}

	selection := SelectQuorum(snap)
	h.logger.Info("Quorum selected",
		logging.Operation(req.Operation),
		logging.Quorum(selection.Quorum),
		logging.Count(selection.QuorumSize),
		logging.Bool("satisfied", selection.Satisfied))

	respondJSON(w, http.StatusOK, selection)
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
