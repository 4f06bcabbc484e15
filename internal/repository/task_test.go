package repository

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
)

func newTask(id string, created time.Time) *types.Task {
	return &types.Task{
		ID:        id,
		Type:      types.TaskTypeCopy,
		Status:    types.TaskStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestTaskRepository_CreateGet(t *testing.T) {
	repo := NewTaskRepository()
	task := newTask("t1", time.Now())

	if err := repo.Create(task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(task); err == nil {
		t.Error("duplicate id should fail")
	}

	got, err := repo.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Status = types.TaskStatusFailed

	again, _ := repo.Get("t1")
	if again.Status != types.TaskStatusPending {
		t.Error("mutating a returned task changed the stored one")
	}

	_, err = repo.Get("missing")
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrTaskNotFound {
		t.Errorf("err = %v, want TASK_NOT_FOUND", err)
	}
}

func TestTaskRepository_Update(t *testing.T) {
	repo := NewTaskRepository()
	repo.Create(newTask("t1", time.Now()))

	updated, err := repo.Update("t1", func(task *types.Task) error {
		task.Status = types.TaskStatusRunning
		task.Result = map[string]interface{}{"threads": 2}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != types.TaskStatusRunning {
		t.Errorf("status = %s", updated.Status)
	}
	updated.Result["threads"] = 9

	stored, _ := repo.Get("t1")
	if stored.Result["threads"] != 2 {
		t.Error("result map is shared with the caller")
	}

	boom := errors.New("boom")
	if _, err := repo.Update("t1", func(task *types.Task) error {
		task.Status = types.TaskStatusFailed
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	stored, _ = repo.Get("t1")
	if stored.Status != types.TaskStatusRunning {
		t.Error("failed update was applied")
	}
}

func TestTaskRepository_ListNewestFirst(t *testing.T) {
	repo := NewTaskRepository()
	base := time.Now()
	repo.Create(newTask("old", base))
	repo.Create(newTask("new", base.Add(time.Second)))
	repo.Create(newTask("mid", base.Add(500*time.Millisecond)))

	tasks, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	if len(ids) != 3 || ids[0] != "new" || ids[1] != "mid" || ids[2] != "old" {
		t.Errorf("order = %v", ids)
	}

	repo.Delete("mid")
	if tasks, _ := repo.List(); len(tasks) != 2 {
		t.Errorf("len = %d after delete", len(tasks))
	}
}

func TestTaskRepository_PruneFinished(t *testing.T) {
	repo := NewTaskRepository()
	now := time.Now()
	done := now.Add(-time.Hour)

	finished := newTask("finished", now)
	finished.Status = types.TaskStatusCompleted
	finished.CompletedAt = &done
	repo.Create(finished)

	running := newTask("running", now)
	running.Status = types.TaskStatusRunning
	repo.Create(running)

	if n := repo.PruneFinished(now.Add(-time.Minute)); n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := repo.Get("running"); err != nil {
		t.Error("running task was pruned")
	}
}
