package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xuecangming/file-manager/internal/api"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/core/cache"
	"github.com/xuecangming/file-manager/internal/core/copier"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/volume"
	"github.com/xuecangming/file-manager/internal/core/watcher"
	"github.com/xuecangming/file-manager/internal/infrastructure/database"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
	"github.com/xuecangming/file-manager/internal/repository"
	"github.com/xuecangming/file-manager/internal/service/audit"
	"github.com/xuecangming/file-manager/internal/service/events"
	"github.com/xuecangming/file-manager/internal/service/media"
	"github.com/xuecangming/file-manager/internal/service/task"
	"github.com/xuecangming/file-manager/internal/service/transfer"
)

// Finished tasks are kept this long for status queries
const taskRetention = time.Hour

func main() {
	// Load configuration
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(&logger.Config{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
		Output: config.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger.SetGlobalLogger(appLog)
	defer appLog.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The media index is optional; listings work from the filesystem alone
	var db *sql.DB
	var index media.Index
	var mediaRepo *repository.MediaRepository
	if config.Database.Enabled {
		db, err = database.NewPostgresDB(config.Database)
		if err != nil {
			appLog.Fatal("failed to connect to database", logger.Error(err))
		}
		defer db.Close()

		if err := database.RunMigrations(db); err != nil {
			appLog.Fatal("failed to run migrations", logger.Error(err))
		}
		mediaRepo = repository.NewMediaRepository(db)
		index = mediaRepo
	}

	hub := events.NewHub(appLog)
	volumes := volume.NewMonitor(config.Volumes.Mounts, seconds(config.Volumes.RefreshSeconds), appLog)
	fs := storage.NewLocalStorage(false)
	coordinator := cache.NewCoordinator(cache.NewStore(config.Cache.Capacity, seconds(config.Cache.TTLSeconds)))
	mediaSvc := media.NewService(coordinator, fs, index, volumes, appLog)

	volumes.OnChange(func(v types.Volume) {
		hub.PublishVolume(v)
		ev := watcher.Event{Type: watcher.EventDelete, Path: v.Path, IsDir: true, Time: time.Now().Unix()}
		if v.Mounted {
			ev.Type = watcher.EventCreate
		}
		if err := mediaSvc.HandleChange(ctx, ev); err != nil {
			appLog.Warn("failed to apply volume change", logger.String("volume", v.Name), logger.Error(err))
		}
	})
	volumes.Refresh()
	go volumes.Run(ctx)

	tasks := task.NewService(repository.NewTaskRepository())
	tasks.Subscribe(hub.PublishTask)

	policy, err := copier.ParsePolicy(config.Copy.DefaultPolicy)
	if err != nil {
		appLog.Fatal("invalid default exists policy", logger.Error(err))
	}
	transfers := transfer.NewService(copier.Options{
		BufferSize:     config.Copy.BufferSize,
		ChunkThreshold: config.Copy.ChunkThreshold,
		MaxThreads:     config.Copy.MaxThreads,
		PollInterval:   time.Duration(config.Copy.PausePollMS) * time.Millisecond,
	}, policy, tasks, volumes, mediaSvc, appLog)

	var auditor *audit.Service
	if mediaRepo != nil {
		auditor = audit.NewService(mediaRepo, mediaSvc, appLog)
	}

	var fw *watcher.Watcher
	if config.Watcher.Enabled {
		roots := config.Watcher.Roots
		if len(roots) == 0 {
			for _, v := range volumes.List() {
				roots = append(roots, v.Path)
			}
		}
		fw = watcher.New(roots, seconds(config.Watcher.IntervalSeconds), appLog)
		changes := fw.Subscribe()
		go func() {
			for ev := range changes {
				if err := mediaSvc.HandleChange(ctx, ev); err != nil {
					appLog.Warn("failed to apply change", logger.String("path", ev.Path), logger.Error(err))
				}
				hub.PublishChange(ev)
			}
		}()
		fw.Start(ctx)

		if mediaSvc.IndexEnabled() {
			go func() {
				for _, root := range roots {
					n, err := mediaSvc.Reindex(ctx, root)
					if err != nil {
						appLog.Warn("reindex failed", logger.String("root", root), logger.Error(err))
						continue
					}
					appLog.Info("reindexed", logger.String("root", root), logger.Int("files", n))
				}
			}()
		}
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := tasks.PruneFinished(taskRetention); n > 0 {
					appLog.Debug("pruned finished tasks", logger.Int("count", n))
				}
			}
		}
	}()

	// Create API server
	server := api.NewServer(config, api.Services{
		DB:        db,
		Storage:   fs,
		Media:     mediaSvc,
		Tasks:     tasks,
		Transfers: transfers,
		Volumes:   volumes,
		Hub:       hub,
		Audit:     auditor,
		Logger:    appLog,
	})

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	// Start server in a goroutine
	go func() {
		appLog.Info("server starting", logger.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("server failed", logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("server shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Event streams are long lived; close them before draining requests
	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", logger.Error(err))
	}
	if err := transfers.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("transfers did not stop in time", logger.Error(err))
	}
	if fw != nil {
		fw.Stop()
	}
	stop()

	appLog.Info("server stopped")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
