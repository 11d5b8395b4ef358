package handler

import (
	"net/http"
	"time"

	"standwatch/internal/ingestor"
	"standwatch/internal/store"
)

// Readiness is implemented by *ingestor.Orchestrator.
type Readiness interface {
	State() ingestor.State
}

type HealthHandler struct {
	readiness Readiness
	store     *store.Store
}

func NewHealthHandler(r Readiness, s *store.Store) *HealthHandler {
	return &HealthHandler{
		readiness: r,
		store:     s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	State      string    `json:"state"`
	StandCount int       `json:"standCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	state := h.readiness.State()
	ready := state == ingestor.StateReady
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		State:      state.String(),
		StandCount: h.store.Count(),
		UpdatedAt:  h.store.UpdatedAt(),
		ServerTime: time.Now(),
	})
}
