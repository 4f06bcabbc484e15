package types

import "time"

// TaskStatus represents the status of an async task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// Terminal reports whether no further transitions can happen
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusSkipped:
		return true
	}
	return false
}

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeCopy TaskType = "copy"
	TaskTypeMove TaskType = "move"
)

// Task represents an asynchronous file transfer
type Task struct {
	ID          string                 `json:"id"`
	Type        TaskType               `json:"type"`
	Status      TaskStatus             `json:"status"`
	Source      string                 `json:"source"`
	Destination string                 `json:"destination"`
	Policy      string                 `json:"policy"`
	Progress    int                    `json:"progress"` // 0-100
	BytesTotal  int64                  `json:"bytes_total"`
	BytesDone   int64                  `json:"bytes_done"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
