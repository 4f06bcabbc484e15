// Package transfer runs copy and move operations as asynchronous tasks on
// top of the chunked copy engine.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/core/copier"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/volume"
	"github.com/xuecangming/file-manager/internal/metrics"
	"github.com/xuecangming/file-manager/internal/service/task"
)

// Request describes one clipboard operation
type Request struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Policy      string `json:"policy,omitempty"`
}

// Volumes resolves paths to volumes and checks free space
type Volumes interface {
	Resolve(path string) (types.Volume, error)
	HasSpace(path string, n int64) (bool, int64, error)
}

// Cache is told which listings a finished transfer made stale
type Cache interface {
	InvalidateParent(path string)
	InvalidateQueries()
}

// transfer is the live state of a running task
type transfer struct {
	ctl  *copier.Controller
	done chan struct{}
}

// Service handles transfer operations
type Service struct {
	opts          copier.Options
	defaultPolicy copier.Policy
	tasks         *task.Service
	volumes       Volumes
	cache         Cache
	log           logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*transfer
}

// NewService creates a new transfer service. volumes and cache may be nil.
func NewService(opts copier.Options, defaultPolicy copier.Policy, tasks *task.Service, volumes Volumes, cache Cache, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:          opts,
		defaultPolicy: defaultPolicy,
		tasks:         tasks,
		volumes:       volumes,
		cache:         cache,
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
		running:       make(map[string]*transfer),
	}
}

// Copy starts copying a file and returns its task
func (s *Service) Copy(ctx context.Context, req Request) (*types.Task, error) {
	return s.start(ctx, types.TaskTypeCopy, req)
}

// Move starts moving a file and returns its task. The source is removed
// once the copy is verified.
func (s *Service) Move(ctx context.Context, req Request) (*types.Task, error) {
	return s.start(ctx, types.TaskTypeMove, req)
}

// plan is a validated request
type plan struct {
	src, dst string
	size     int64
	policy   copier.Policy
}

func (s *Service) prepare(req Request) (*plan, error) {
	if !utils.ValidatePath(req.Source) {
		return nil, apperrors.InvalidPath(req.Source)
	}
	if !utils.ValidatePath(req.Destination) {
		return nil, apperrors.InvalidPath(req.Destination)
	}

	policy := s.defaultPolicy
	if req.Policy != "" {
		p, err := copier.ParsePolicy(req.Policy)
		if err != nil {
			return nil, apperrors.InvalidRequest(err.Error())
		}
		policy = p
	}

	src := filepath.Clean(req.Source)
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.PathNotFound(src)
		}
		return nil, apperrors.InternalError(err.Error())
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.InvalidPath(src).WithDetails("reason", "not a regular file")
	}

	dst := filepath.Clean(req.Destination)
	if strings.HasSuffix(req.Destination, "/") {
		dst = filepath.Join(dst, filepath.Base(src))
	} else if di, err := os.Stat(dst); err == nil && di.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if dst == src {
		return nil, apperrors.InvalidRequest("source and destination are the same file").WithDetails("path", src)
	}

	if s.volumes != nil {
		if err := s.checkVolumes(src, dst, info.Size()); err != nil {
			return nil, err
		}
	}

	return &plan{src: src, dst: dst, size: info.Size(), policy: policy}, nil
}

func (s *Service) checkVolumes(src, dst string, size int64) error {
	for _, p := range []string{src, dst} {
		v, err := s.volumes.Resolve(p)
		if err != nil {
			s.log.Warn("operation not permitted", logger.String("path", p), logger.Error(err))
			return apperrors.NotPermitted(p, "path is outside the managed volumes")
		}
		if !v.CheckedAt.IsZero() && !v.Mounted {
			return apperrors.NotPermitted(p, fmt.Sprintf("volume %s is not mounted", v.Name))
		}
	}

	ok, free, err := s.volumes.HasSpace(dst, size)
	if err != nil {
		if errors.Is(err, volume.ErrNoVolume) {
			return apperrors.NotPermitted(dst, "path is outside the managed volumes")
		}
		// an unreadable free space figure does not block the copy
		s.log.Warn("free space check failed", logger.String("path", dst), logger.Error(err))
		return nil
	}
	if !ok {
		return apperrors.StorageFull(dst, size, free)
	}
	return nil
}

func (s *Service) start(ctx context.Context, taskType types.TaskType, req Request) (*types.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	t, err := s.tasks.CreateTask(taskType, p.src, p.dst, p.policy.String())
	if err != nil {
		return nil, err
	}
	if err := s.tasks.StartTask(t.ID, p.size); err != nil {
		return nil, err
	}

	tr := &transfer{ctl: copier.NewController(), done: make(chan struct{})}
	s.mu.Lock()
	s.running[t.ID] = tr
	s.mu.Unlock()

	s.log.Info("transfer started",
		logger.String("task_id", t.ID),
		logger.String("type", string(taskType)),
		logger.String("source", p.src),
		logger.String("destination", p.dst),
		logger.Int64("size", p.size),
	)

	s.wg.Add(1)
	go s.run(t.ID, taskType, p, tr)

	return s.tasks.GetTask(t.ID)
}

func (s *Service) run(id string, taskType types.TaskType, p *plan, tr *transfer) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		close(tr.done)
	}()

	metrics.TransferStarted()
	defer metrics.TransferFinished()

	listener := newTaskListener(id, p.size, s.tasks, s.log)
	cp := copier.New(s.opts, listener)

	start := time.Now()
	res, err := cp.Copy(s.ctx, p.src, p.dst, p.policy, tr.ctl)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.finish(id, taskType, p, res)
		metrics.RecordCopy(metrics.OutcomeDone, res.Threads, elapsed)
	case errors.Is(err, copier.ErrSkipped):
		s.tasks.SkipTask(id, "destination exists")
		metrics.RecordCopy(metrics.OutcomeSkipped, 0, elapsed)
	case errors.Is(err, copier.ErrDestinationExists):
		s.tasks.FailTask(id, apperrors.FileExists(p.dst).Message)
		metrics.RecordCopy(metrics.OutcomeExists, 0, elapsed)
	case errors.Is(err, copier.ErrCancelled):
		s.tasks.CancelTask(id)
		metrics.RecordCopy(metrics.OutcomeCancelled, 0, elapsed)
	default:
		s.tasks.FailTask(id, err.Error())
		metrics.RecordCopy(metrics.OutcomeFailed, 0, elapsed)
	}
}

func (s *Service) finish(id string, taskType types.TaskType, p *plan, res *copier.Result) {
	result := map[string]interface{}{
		"destination": res.Destination,
		"size":        res.Size,
		"threads":     res.Threads,
		"elapsed_ms":  res.Elapsed.Milliseconds(),
	}

	if taskType == types.TaskTypeMove {
		if err := os.Remove(p.src); err != nil {
			s.log.Warn("move: failed to remove source",
				logger.String("task_id", id),
				logger.String("source", p.src),
				logger.Error(err),
			)
			result["source_removed"] = false
		} else {
			result["source_removed"] = true
		}
	}

	if s.cache != nil {
		s.cache.InvalidateParent(res.Destination)
		if taskType == types.TaskTypeMove {
			s.cache.InvalidateParent(p.src)
		}
		s.cache.InvalidateQueries()
	}

	if err := s.tasks.CompleteTask(id, result); err != nil {
		s.log.Error("failed to complete task", logger.String("task_id", id), logger.Error(err))
	}
}

// lookup returns the live transfer of a task, or the error to report when
// the task is not running
func (s *Service) lookup(id string) (*transfer, error) {
	s.mu.Lock()
	tr, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		return tr, nil
	}

	t, err := s.tasks.GetTask(id)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.TaskFinished(id, string(t.Status))
}

// Pause suspends a running transfer
func (s *Service) Pause(id string) error {
	tr, err := s.lookup(id)
	if err != nil {
		return err
	}
	tr.ctl.Pause()
	return s.tasks.SetPaused(id, true)
}

// Resume continues a paused transfer
func (s *Service) Resume(id string) error {
	tr, err := s.lookup(id)
	if err != nil {
		return err
	}
	tr.ctl.Resume()
	return s.tasks.SetPaused(id, false)
}

// Cancel stops a transfer and discards its partial output
func (s *Service) Cancel(id string) error {
	tr, err := s.lookup(id)
	if err != nil {
		return err
	}
	tr.ctl.Cancel()
	return nil
}

// PauseAll pauses every running transfer and returns how many were paused
func (s *Service) PauseAll() int {
	n := 0
	for _, id := range s.runningIDs() {
		if s.Pause(id) == nil {
			n++
		}
	}
	return n
}

// ResumeAll resumes every running transfer and returns how many were
// resumed
func (s *Service) ResumeAll() int {
	n := 0
	for _, id := range s.runningIDs() {
		if s.Resume(id) == nil {
			n++
		}
	}
	return n
}

// Active returns the number of running transfers
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Service) runningIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until the task reaches a terminal state or ctx is done
func (s *Service) Wait(ctx context.Context, id string) (*types.Task, error) {
	s.mu.Lock()
	tr, ok := s.running[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-tr.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.tasks.GetTask(id)
}

// Shutdown cancels every running transfer and waits for them to clean up
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
