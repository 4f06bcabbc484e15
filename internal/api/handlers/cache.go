package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/service/media"
)

// CacheHandler exposes the media list cache
type CacheHandler struct {
	service *media.Service
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(service *media.Service) *CacheHandler {
	return &CacheHandler{service: service}
}

// Stats handles GET /cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.Stats())
}

// Clear handles DELETE /cache
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.service.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// Invalidate handles POST /cache/invalidate
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Tree bool   `json:"tree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequest("invalid request body"))
		return
	}
	if req.Path == "" {
		errors.WriteError(w, errors.InvalidRequest("path is required"))
		return
	}

	if req.Tree {
		h.service.InvalidateTree(req.Path)
	} else {
		h.service.Invalidate(req.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.Stats())
}
