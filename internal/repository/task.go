package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
)

// TaskRepository handles task storage. Tasks handed out are copies.
type TaskRepository struct {
	tasks map[string]*types.Task
	mu    sync.RWMutex
}

// NewTaskRepository creates a new task repository
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[string]*types.Task),
	}
}

func copyTask(t *types.Task) *types.Task {
	c := *t
	if t.Result != nil {
		c.Result = make(map[string]interface{}, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// Create creates a new task
func (r *TaskRepository) Create(task *types.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return errors.InvalidRequest("task already exists").WithDetails("task_id", task.ID)
	}

	r.tasks[task.ID] = copyTask(task)
	return nil
}

// Get retrieves a task by ID
func (r *TaskRepository) Get(id string) (*types.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, errors.TaskNotFound(id)
	}

	return copyTask(task), nil
}

// Update applies mutate to the stored task under the repository lock and
// returns the updated copy. An error from mutate leaves the task unchanged.
func (r *TaskRepository) Update(id string, mutate func(*types.Task) error) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.tasks[id]
	if !exists {
		return nil, errors.TaskNotFound(id)
	}

	work := copyTask(stored)
	if err := mutate(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now()
	r.tasks[id] = work
	return copyTask(work), nil
}

// List returns all tasks, newest first
func (r *TaskRepository) List() ([]*types.Task, error) {
	r.mu.RLock()
	tasks := make([]*types.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, copyTask(t))
	}
	r.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Delete deletes a task
func (r *TaskRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, id)
	return nil
}

// PruneFinished removes terminal tasks completed before cutoff and returns
// how many were removed
func (r *TaskRepository) PruneFinished(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, t := range r.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
