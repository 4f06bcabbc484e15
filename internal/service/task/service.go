package task

import (
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/repository"
)

// Notifier receives a copy of a task after every change
type Notifier func(task types.Task)

// Service handles task operations
type Service struct {
	repo *repository.TaskRepository

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewService creates a new task service
func NewService(repo *repository.TaskRepository) *Service {
	return &Service{
		repo: repo,
	}
}

// Subscribe registers fn to be called after every task change
func (s *Service) Subscribe(fn Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, fn)
}

func (s *Service) notify(t *types.Task) {
	s.mu.RLock()
	notifiers := s.notifiers
	s.mu.RUnlock()
	for _, fn := range notifiers {
		fn(*t)
	}
}

// CreateTask creates a new pending task
func (s *Service) CreateTask(taskType types.TaskType, source, destination, policy string) (*types.Task, error) {
	now := time.Now()
	task := &types.Task{
		ID:          utils.GenerateID(),
		Type:        taskType,
		Status:      types.TaskStatusPending,
		Source:      source,
		Destination: destination,
		Policy:      policy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(task); err != nil {
		return nil, err
	}
	s.notify(task)
	return task, nil
}

// GetTask retrieves a task
func (s *Service) GetTask(id string) (*types.Task, error) {
	return s.repo.Get(id)
}

// ListTasks lists all tasks, newest first
func (s *Service) ListTasks() ([]*types.Task, error) {
	return s.repo.List()
}

// update runs mutate on a task that has not finished yet
func (s *Service) update(id string, mutate func(*types.Task)) (*types.Task, error) {
	task, err := s.repo.Update(id, func(t *types.Task) error {
		if t.Status.Terminal() {
			return errors.TaskFinished(t.ID, string(t.Status))
		}
		mutate(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(task)
	return task, nil
}

// StartTask marks a task as running
func (s *Service) StartTask(id string, bytesTotal int64) error {
	_, err := s.update(id, func(t *types.Task) {
		t.Status = types.TaskStatusRunning
		t.BytesTotal = bytesTotal
	})
	return err
}

// UpdateProgress records bytes copied so far. Subscribers are only
// notified when the whole percentage changed, which is also what the
// returned flag reports.
func (s *Service) UpdateProgress(id string, bytesDone int64) (bool, error) {
	changed := false
	task, err := s.repo.Update(id, func(t *types.Task) error {
		if t.Status.Terminal() {
			return errors.TaskFinished(t.ID, string(t.Status))
		}
		t.BytesDone = bytesDone
		progress := 100
		if t.BytesTotal > 0 {
			progress = int(bytesDone * 100 / t.BytesTotal)
		}
		if progress > 100 {
			progress = 100
		}
		changed = progress != t.Progress
		t.Progress = progress
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.notify(task)
	}
	return changed, nil
}

// SetPaused switches a task between running and paused
func (s *Service) SetPaused(id string, paused bool) error {
	_, err := s.update(id, func(t *types.Task) {
		if paused {
			t.Status = types.TaskStatusPaused
		} else if t.Status == types.TaskStatusPaused {
			t.Status = types.TaskStatusRunning
		}
	})
	return err
}

// CompleteTask marks a task as completed
func (s *Service) CompleteTask(id string, result map[string]interface{}) error {
	return s.finish(id, types.TaskStatusCompleted, "", result)
}

// FailTask marks a task as failed
func (s *Service) FailTask(id string, errorMsg string) error {
	return s.finish(id, types.TaskStatusFailed, errorMsg, nil)
}

// CancelTask marks a task as cancelled
func (s *Service) CancelTask(id string) error {
	return s.finish(id, types.TaskStatusCancelled, "", nil)
}

// SkipTask marks a task as skipped because its destination existed
func (s *Service) SkipTask(id string, reason string) error {
	return s.finish(id, types.TaskStatusSkipped, reason, nil)
}

func (s *Service) finish(id string, status types.TaskStatus, errorMsg string, result map[string]interface{}) error {
	_, err := s.update(id, func(t *types.Task) {
		now := time.Now()
		t.Status = status
		t.Error = errorMsg
		t.Result = result
		t.CompletedAt = &now
		if status == types.TaskStatusCompleted {
			t.Progress = 100
			t.BytesDone = t.BytesTotal
		}
	})
	return err
}

// PruneFinished drops finished tasks older than maxAge
func (s *Service) PruneFinished(maxAge time.Duration) int {
	return s.repo.PruneFinished(time.Now().Add(-maxAge))
}
