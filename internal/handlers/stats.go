package handlers

import (
	"net/http"

	"studytrack-backend/internal/middleware"
	"studytrack-backend/internal/services"
)

type StatsHandler struct {
	stats *services.StatsService
}

func NewStatsHandler(stats *services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Today(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Today(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *StatsHandler) Range(w http.ResponseWriter, r *http.Request) {
	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "week"
	}

	stats, err := h.stats.Range(r.Context(), middleware.GetUserID(r.Context()), rng)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"days": stats})
}
