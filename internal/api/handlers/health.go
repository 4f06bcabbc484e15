package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/xuecangming/file-manager/internal/core/volume"
	"github.com/xuecangming/file-manager/internal/service/media"
	"github.com/xuecangming/file-manager/internal/service/transfer"
)

// Version is reported by /info
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *sql.DB // nil when the media index is disabled
	volumes   *volume.Monitor
	media     *media.Service
	transfers *transfer.Service
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sql.DB, volumes *volume.Monitor, mediaSvc *media.Service, transfers *transfer.Service) *HealthHandler {
	return &HealthHandler{
		db:        db,
		volumes:   volumes,
		media:     mediaSvc,
		transfers: transfers,
		startTime: time.Now(),
	}
}

// ComponentHealth represents health status of a component
type ComponentHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]ComponentHealth)

	dbHealth := h.checkDatabase()
	components["database"] = dbHealth
	if dbHealth.Status == "unhealthy" {
		status = "unhealthy"
	}

	components["system"] = h.checkSystem()
	components["cache"] = h.checkCache()

	volHealth := h.checkVolumes()
	components["volumes"] = volHealth
	if volHealth.Status == "unhealthy" {
		status = "unhealthy"
	}

	if h.transfers != nil {
		components["transfers"] = ComponentHealth{
			Status:  "healthy",
			Details: map[string]interface{}{"active": h.transfers.Active()},
		}
	}

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).String(),
		Components: components,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// checkDatabase checks the media index connection
func (h *HealthHandler) checkDatabase() ComponentHealth {
	if h.db == nil {
		return ComponentHealth{
			Status:  "disabled",
			Message: "media index is not enabled",
		}
	}

	start := time.Now()
	err := h.db.Ping()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	}

	// Check connection pool stats
	stats := h.db.Stats()
	details := map[string]interface{}{
		"latency_ms":    latency.Milliseconds(),
		"open_conns":    stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait_count":    stats.WaitCount,
		"wait_duration": stats.WaitDuration.String(),
	}

	health := "healthy"
	if stats.WaitCount > 100 {
		health = "degraded"
	}

	return ComponentHealth{
		Status:  health,
		Details: details,
	}
}

func (h *HealthHandler) checkCache() ComponentHealth {
	if h.media == nil {
		return ComponentHealth{Status: "disabled"}
	}
	st := h.media.Stats()
	return ComponentHealth{
		Status: "healthy",
		Details: map[string]interface{}{
			"size":      st.Size,
			"max_size":  st.MaxSize,
			"hits":      st.Hits,
			"misses":    st.Misses,
			"evictions": st.Evictions,
		},
	}
}

// checkVolumes reports unhealthy when no volume is mounted
func (h *HealthHandler) checkVolumes() ComponentHealth {
	if h.volumes == nil {
		return ComponentHealth{Status: "disabled"}
	}
	summary := h.volumes.Summary()
	if summary["mounted_volumes"] == 0 {
		return ComponentHealth{
			Status:  "unhealthy",
			Message: "no volume is mounted",
			Details: summary,
		}
	}
	return ComponentHealth{Status: "healthy", Details: summary}
}

// checkSystem checks system resource health
func (h *HealthHandler) checkSystem() ComponentHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"alloc_mb":       m.Alloc / 1024 / 1024,
		"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
		"sys_mb":         m.Sys / 1024 / 1024,
		"num_gc":         m.NumGC,
		"last_gc":        time.Unix(0, int64(m.LastGC)).Format(time.RFC3339),
	}

	status := "healthy"
	// Check if memory usage is too high (>1GB)
	if m.Alloc > 1024*1024*1024 {
		status = "degraded"
	}

	// Check if too many goroutines (>10000)
	if runtime.NumGoroutine() > 10000 {
		status = "degraded"
	}

	return ComponentHealth{
		Status:  status,
		Details: details,
	}
}

// Info handles GET /info
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"name":          "File Manager",
		"version":       Version,
		"api_version":   "v1",
		"go_version":    runtime.Version(),
		"uptime":        time.Since(h.startTime).String(),
		"started_at":    h.startTime.Format(time.RFC3339),
		"index_enabled": h.media != nil && h.media.IndexEnabled(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "not ready",
				"message": "database connection not available",
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
	})
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	// Simple liveness check - if we can respond, we're alive
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}
