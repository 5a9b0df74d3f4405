package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dd0wney/cluso-sqlgate/pkg/auth"
)

// adminRoutes registers the operator endpoints. With a JWT manager
// configured they require an admin bearer token.
func (h *Handler) adminRoutes(mux *http.ServeMux) {
	guard := func(fn http.HandlerFunc) http.Handler {
		if h.jwt == nil {
			return fn
		}
		return h.jwt.RequireRole(auth.RoleAdmin, fn)
	}

	mux.Handle("/admin/stop-master-only", guard(h.handleStopMasterOnly))
	mux.Handle("/admin/promote-leader", guard(h.handlePromoteLeader))
	mux.Handle("/admin/trigger-failover", guard(h.handleTriggerFailover))
	mux.Handle("/admin/start-instance", guard(h.handleStartInstance))
	mux.Handle("/admin/restart-old-master", guard(h.handleRestartOldMaster))
	mux.Handle("/admin/leader-info", guard(h.handleLeaderInfo))
	mux.Handle("/admin/clear-consistency-metrics", guard(h.handleClearConsistencyMetrics))
}

func decodeAdminBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return body, false
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return body, false
	}
	return body, true
}

func (h *Handler) handleStopMasterOnly(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAdminBody[struct {
		MasterID string `json:"master_id"`
	}](w, r)
	if !ok {
		return
	}

	master := h.coordinator.State().Master()
	if body.MasterID != "" && body.MasterID != master.ID {
		respondError(w, http.StatusBadRequest, "Instance "+body.MasterID+" is not the current master")
		return
	}

	if err := h.coordinator.Failover().procs.Stop(r.Context(), master.ID); err != nil {
		respondError(w, http.StatusBadGateway, "Failed to stop master: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "stopped",
		"master_id": master.ID,
	})
}

func (h *Handler) handlePromoteLeader(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAdminBody[struct {
		NewLeader string `json:"new_leader"`
	}](w, r)
	if !ok {
		return
	}
	if body.NewLeader == "" {
		respondError(w, http.StatusBadRequest, "new_leader is required")
		return
	}

	report, err := h.coordinator.Failover().PromoteLeader(r.Context(), body.NewLeader)
	respondFailover(w, report, err)
}

func (h *Handler) handleTriggerFailover(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAdminBody[struct {
		NewLeader string `json:"new_leader,omitempty"`
	}](w, r)
	if !ok {
		return
	}

	report, err := h.coordinator.Failover().TriggerFailover(r.Context(), body.NewLeader)
	respondFailover(w, report, err)
}

func (h *Handler) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeAdminBody[struct {
		InstanceID string `json:"instance_id"`
	}](w, r)
	if !ok {
		return
	}
	if body.InstanceID == "" {
		respondError(w, http.StatusBadRequest, "instance_id is required")
		return
	}

	if err := h.coordinator.Failover().procs.Start(r.Context(), body.InstanceID); err != nil {
		respondError(w, http.StatusBadGateway, "Failed to start instance: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "started",
		"instance_id": body.InstanceID,
	})
}

func (h *Handler) handleRestartOldMaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	report, err := h.coordinator.Failover().RejoinOldMaster(r.Context())
	respondFailover(w, report, err)
}

func (h *Handler) handleLeaderInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	view := h.coordinator.State().View()
	respondJSON(w, http.StatusOK, map[string]any{
		"master_id":          view.MasterID,
		"master_host":        view.MasterHost,
		"master_is_original": view.MasterIsOriginal,
		"last_election":      h.coordinator.Failover().LastElection(),
	})
}

func (h *Handler) handleClearConsistencyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.coordinator.Consistency().Clear()
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

// respondFailover writes a failover report, mapping errors to the
// taxonomy but still including partial step progress in the body.
func respondFailover(w http.ResponseWriter, report *FailoverReport, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, report)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrFailoverInProgress):
		status = http.StatusConflict
	case errors.Is(err, ErrDependencyUnavailable):
		status = http.StatusServiceUnavailable
	}

	payload := map[string]any{
		"error":   http.StatusText(status),
		"message": err.Error(),
		"code":    status,
	}
	if report != nil {
		payload["report"] = report
	}
	respondJSON(w, status, payload)
}
