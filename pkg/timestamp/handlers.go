package timestamp

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// TimestampResponse is the payload for an issued timestamp
type TimestampResponse struct {
	Timestamp uint64 `json:"timestamp"`
	ServerID  int    `json:"server_id"`
}

// Handler exposes the issuer over HTTP
type Handler struct {
	issuer *Issuer
}

// NewHandler creates the HTTP surface for an issuer
func NewHandler(issuer *Issuer) *Handler {
	return &Handler{issuer: issuer}
}

// Routes registers the issuer endpoints on a mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/timestamp", h.handleTimestamp)
	mux.HandleFunc("/reset", h.handleReset)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(), promhttp.HandlerOpts{}))
}

func (h *Handler) handleTimestamp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ts, err := h.issuer.Next()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, TimestampResponse{
		Timestamp: ts,
		ServerID:  h.issuer.ServerID(),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.issuer.Reset(); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "reset",
		"server_id":       h.issuer.ServerID(),
		"current_counter": h.issuer.Current(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"server_id":       h.issuer.ServerID(),
		"current_counter": h.issuer.Current(),
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
