package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"prefork/internal/supervisor"
)

// StatusHandler serves the read-only view of the worker pool.
type StatusHandler struct {
	sup *supervisor.Supervisor
}

func NewStatusHandler(sup *supervisor.Supervisor) *StatusHandler {
	return &StatusHandler{sup: sup}
}

type StatusResponse struct {
	LaunchID     string `json:"launch_id"`
	ReadyWorkers int    `json:"ready_workers"`
	Ready        bool   `json:"ready"`
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// ReadyCheck answers 200 only while the full worker complement is serving.
func (h *StatusHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ready"
	if !h.sup.Ready() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	h.writeJSON(w, status, HealthResponse{
		Status:    state,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusResponse{
		LaunchID:     h.sup.LaunchID(),
		ReadyWorkers: h.sup.ReadyCount(),
		Ready:        h.sup.Ready(),
	})
}

func (h *StatusHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sup.Workers())
}

func (h *StatusHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	h.writeJSON(w, http.StatusOK, h.sup.Events(limit))
}
