package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/service/audit"
)

// AuditHandler handles media index audit requests
type AuditHandler struct {
	auditService *audit.Service // nil when the media index is disabled
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *audit.Service) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

// StartAudit handles POST /index/audit?repair=true
func (h *AuditHandler) StartAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditService == nil {
		errors.WriteError(w, errors.UpstreamError("media index is disabled"))
		return
	}

	repair := false
	if v := r.URL.Query().Get("repair"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errors.WriteError(w, errors.InvalidRequest("repair must be a boolean"))
			return
		}
		repair = b
	}

	report, err := h.auditService.StartAudit(repair)
	if err != nil {
		errors.WriteError(w, errors.Conflict(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(report)
}

// GetStatus handles GET /index/audit
func (h *AuditHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.auditService == nil {
		errors.WriteError(w, errors.UpstreamError("media index is disabled"))
		return
	}

	report := h.auditService.GetStatus()
	if report == nil {
		errors.WriteError(w, errors.NotFound("no audit report found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
