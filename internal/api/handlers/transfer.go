package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/service/transfer"
)

// TransferHandler starts copy and move tasks
type TransferHandler struct {
	service *transfer.Service
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(service *transfer.Service) *TransferHandler {
	return &TransferHandler{service: service}
}

func decodeTransfer(r *http.Request) (transfer.Request, error) {
	var req transfer.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.InvalidRequest("invalid request body")
	}
	if req.Source == "" || req.Destination == "" {
		return req, errors.InvalidRequest("source and destination are required")
	}
	return req, nil
}

// Copy handles POST /transfers/copy
func (h *TransferHandler) Copy(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransfer(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	task, err := h.service.Copy(r.Context(), req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(task)
}

// Move handles POST /transfers/move
func (h *TransferHandler) Move(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransfer(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	task, err := h.service.Move(r.Context(), req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(task)
}
