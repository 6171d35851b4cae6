package handler

import (
	"net/http"
	"time"

	"idphoto/internal/metrics"
)

type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Sessions  int           `json:"sessions"`
	Events    metrics.Stats `json:"events"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: now,
		Uptime:    now.Sub(h.started).Round(time.Second).String(),
		Sessions:  h.store.Len(),
		Events:    h.metrics.GetStats(),
	})
}
