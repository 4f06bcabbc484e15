package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xuecangming/file-manager/internal/core/volume"
)

// VolumeHandler reports storage volumes
type VolumeHandler struct {
	monitor *volume.Monitor
}

// NewVolumeHandler creates a new volume handler
func NewVolumeHandler(monitor *volume.Monitor) *VolumeHandler {
	return &VolumeHandler{monitor: monitor}
}

// List handles GET /volumes
func (h *VolumeHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"volumes": h.monitor.List(),
		"summary": h.monitor.Summary(),
	})
}

// Refresh handles POST /volumes/refresh
func (h *VolumeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.monitor.Refresh()
	h.List(w, r)
}
