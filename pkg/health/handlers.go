package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the full health report. Degraded still returns 200
// so orchestrators do not restart a process that is merely waiting
// out a failover.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, c.Check(), false)
	}
}

// ReadinessHandler is binary: ready or not.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, c.CheckReadiness(), true)
	}
}

// LivenessHandler is binary: alive or not.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, c.CheckLiveness(), true)
	}
}

func writeResponse(w http.ResponseWriter, response Response, binary bool) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	if response.Status == StatusUnhealthy || (binary && response.Status != StatusHealthy) {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
