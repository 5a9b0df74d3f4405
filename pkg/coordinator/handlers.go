package coordinator

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-sqlgate/pkg/auth"
	"github.com/dd0wney/cluso-sqlgate/pkg/metrics"
)

// Handler is the coordinator's HTTP surface.
type Handler struct {
	coordinator *Coordinator
	jwt         *auth.JWTManager
	adminHash   string
}

// NewHandler creates the HTTP surface. jwt and adminHash guard the
// admin endpoints; with a nil jwt the admin surface is left open
// (local development only).
func NewHandler(c *Coordinator, jwt *auth.JWTManager, adminHash string) *Handler {
	return &Handler{coordinator: c, jwt: jwt, adminHash: adminHash}
}

// Routes registers all coordinator endpoints on a mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/query", h.handleQuery)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/consistency-metrics", h.handleConsistencyMetrics)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	h.adminRoutes(mux)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.coordinator.Execute(r.Context(), req)
	if err != nil {
		respondTaxonomy(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	view := h.coordinator.State().View()
	respondJSON(w, http.StatusOK, map[string]any{
		"cluster":        view,
		"failover_phase": h.coordinator.Failover().Phase(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"failover_phase": h.coordinator.Failover().Phase(),
	})
}

func (h *Handler) handleConsistencyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, h.coordinator.Consistency().Report())
}

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.jwt == nil || h.adminHash == "" {
		respondError(w, http.StatusNotImplemented, "Authentication not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := auth.VerifyPassword(h.adminHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, auth.RoleAdmin)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"token": token})
}

// respondTaxonomy maps the coordinator error taxonomy onto HTTP codes.
func respondTaxonomy(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMalformedQuery):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrFailoverInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrDependencyUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrMasterUnreachable), errors.Is(err, ErrNoReadCandidates):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
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
