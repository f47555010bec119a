package handler

import (
	"net/http"

	"github.com/edume/internal/moderation"
	"github.com/edume/internal/ws"
)

// StatsHandler: внутренняя статистика процесса (за middleware.InternalOnly).
type StatsHandler struct {
	hub  *ws.Hub
	gate *moderation.Gate
}

func NewStatsHandler(hub *ws.Hub, gate *moderation.Gate) *StatsHandler {
	return &StatsHandler{hub: hub, gate: gate}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ws_connections":      h.hub.Count(),
		"moderation_degraded": h.gate.DegradedCount(),
	})
}
