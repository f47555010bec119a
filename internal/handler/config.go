package handler

import (
	"net/http"

	"github.com/edume/internal/config"
	"github.com/edume/internal/model"
)

// ConfigHandler отдаёт публичные параметры ленты клиенту.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetFeedConfig: категории в порядке отображения и радиус по умолчанию (без авторизации).
func (h *ConfigHandler) GetFeedConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":            model.Categories,
		"default_radius_meters": h.cfg.FeedDefaultRadiusMeters,
	})
}
