package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/xuecangming/file-manager/internal/api/handlers"
	"github.com/xuecangming/file-manager/internal/api/middleware"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/volume"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
	"github.com/xuecangming/file-manager/internal/metrics"
	"github.com/xuecangming/file-manager/internal/service/audit"
	"github.com/xuecangming/file-manager/internal/service/events"
	"github.com/xuecangming/file-manager/internal/service/media"
	"github.com/xuecangming/file-manager/internal/service/task"
	"github.com/xuecangming/file-manager/internal/service/transfer"
)

// Transfer requests allowed per client per minute
const transferRateLimit = 120

// Services are the components the HTTP API exposes
type Services struct {
	DB        *sql.DB // nil when the media index is disabled
	Storage   *storage.LocalStorage
	Media     *media.Service
	Tasks     *task.Service
	Transfers *transfer.Service
	Volumes   *volume.Monitor
	Hub       *events.Hub
	Audit     *audit.Service // nil when the media index is disabled
	Logger    logger.Logger
}

// Server represents the HTTP server
type Server struct {
	config          *types.Config
	log             logger.Logger
	router          *mux.Router
	healthHandler   *handlers.HealthHandler
	mediaHandler    *handlers.MediaHandler
	fileHandler     *handlers.FileHandler
	transferHandler *handlers.TransferHandler
	taskHandler     *handlers.TaskHandler
	cacheHandler    *handlers.CacheHandler
	volumeHandler   *handlers.VolumeHandler
	eventsHandler   *handlers.EventsHandler
	auditHandler    *handlers.AuditHandler
}

// NewServer creates a new HTTP server
func NewServer(config *types.Config, svc Services) *Server {
	log := svc.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	server := &Server{
		config:          config,
		log:             log,
		router:          mux.NewRouter(),
		healthHandler:   handlers.NewHealthHandler(svc.DB, svc.Volumes, svc.Media, svc.Transfers),
		mediaHandler:    handlers.NewMediaHandler(svc.Media),
		fileHandler:     handlers.NewFileHandler(svc.Storage),
		transferHandler: handlers.NewTransferHandler(svc.Transfers),
		taskHandler:     handlers.NewTaskHandler(svc.Tasks, svc.Transfers),
		cacheHandler:    handlers.NewCacheHandler(svc.Media),
		volumeHandler:   handlers.NewVolumeHandler(svc.Volumes),
		eventsHandler:   handlers.NewEventsHandler(svc.Hub, []string{"*"}),
		auditHandler:    handlers.NewAuditHandler(svc.Audit),
	}

	server.setupRoutes()

	return server
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	// Apply global middleware
	s.router.Use(middleware.CORSMiddleware)
	s.router.Use(middleware.RequestLogger(s.log))
	s.router.Use(middleware.RecoveryMiddleware)
	s.router.Use(metrics.Middleware)

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix(s.config.Server.APIPrefix).Subrouter()

	// Health check and readiness endpoints
	api.HandleFunc("/health", s.healthHandler.Health).Methods("GET", "OPTIONS")
	api.HandleFunc("/info", s.healthHandler.Info).Methods("GET", "OPTIONS")
	api.HandleFunc("/ready", s.healthHandler.Ready).Methods("GET", "OPTIONS")
	api.HandleFunc("/live", s.healthHandler.Live).Methods("GET", "OPTIONS")

	// Media listings
	api.HandleFunc("/media", s.mediaHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/media/query/{type}", s.mediaHandler.Query).Methods("GET", "OPTIONS")

	// File preview and recycle bin
	api.HandleFunc("/files/content", s.fileHandler.Content).Methods("GET", "HEAD", "OPTIONS")
	api.HandleFunc("/files/thumbnail", s.fileHandler.Thumbnail).Methods("GET", "OPTIONS")
	api.HandleFunc("/files/stat", s.mediaHandler.Stat).Methods("GET", "OPTIONS")
	api.HandleFunc("/files/trash", s.mediaHandler.Trash).Methods("POST", "OPTIONS")

	// Clipboard transfers
	transfers := api.PathPrefix("/transfers").Subrouter()
	transfers.Use(middleware.RateLimitMiddleware(transferRateLimit, time.Minute))
	transfers.HandleFunc("/copy", s.transferHandler.Copy).Methods("POST", "OPTIONS")
	transfers.HandleFunc("/move", s.transferHandler.Move).Methods("POST", "OPTIONS")

	// Task routes; the fixed paths must precede {id}
	api.HandleFunc("/tasks", s.taskHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/tasks/pause-all", s.taskHandler.PauseAll).Methods("POST", "OPTIONS")
	api.HandleFunc("/tasks/resume-all", s.taskHandler.ResumeAll).Methods("POST", "OPTIONS")
	api.HandleFunc("/tasks/{id}", s.taskHandler.GetStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/tasks/{id}/pause", s.taskHandler.Pause).Methods("POST", "OPTIONS")
	api.HandleFunc("/tasks/{id}/resume", s.taskHandler.Resume).Methods("POST", "OPTIONS")
	api.HandleFunc("/tasks/{id}/cancel", s.taskHandler.Cancel).Methods("POST", "OPTIONS")

	// Cache routes
	api.HandleFunc("/cache/stats", s.cacheHandler.Stats).Methods("GET", "OPTIONS")
	api.HandleFunc("/cache", s.cacheHandler.Clear).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/cache/invalidate", s.cacheHandler.Invalidate).Methods("POST", "OPTIONS")

	// Media index audit
	api.HandleFunc("/index/audit", s.auditHandler.GetStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/index/audit", s.auditHandler.StartAudit).Methods("POST")

	// Volumes
	api.HandleFunc("/volumes", s.volumeHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/volumes/refresh", s.volumeHandler.Refresh).Methods("POST", "OPTIONS")

	// Live events
	api.HandleFunc("/events", s.eventsHandler.Stream).Methods("GET")

	// Root endpoint - API info
	s.router.HandleFunc("/", s.healthHandler.Info).Methods("GET", "OPTIONS")
}
