package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/service/media"
)

// MediaHandler handles media listing requests
type MediaHandler struct {
	service *media.Service
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service *media.Service) *MediaHandler {
	return &MediaHandler{service: service}
}

// List handles GET /media?path=
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		errors.WriteError(w, errors.InvalidRequest("path parameter is required"))
		return
	}

	items, err := h.service.List(r.Context(), path)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"path":  path,
		"items": items,
		"count": len(items),
	})
}

// Query handles GET /media/query/{type}
func (h *MediaHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := types.QueryType(mux.Vars(r)["type"])

	items, err := h.service.Query(r.Context(), q)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type":  q,
		"items": items,
		"count": len(items),
	})
}

// Stat handles GET /files/stat?path=
func (h *MediaHandler) Stat(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Stat(r.URL.Query().Get("path"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// Trash handles POST /files/trash
func (h *MediaHandler) Trash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequest("invalid request body"))
		return
	}
	if req.Path == "" {
		errors.WriteError(w, errors.InvalidRequest("path is required"))
		return
	}

	target, err := h.service.Trash(r.Context(), req.Path)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"path":    req.Path,
		"trashed": target,
	})
}
