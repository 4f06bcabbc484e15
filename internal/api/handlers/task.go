package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/service/task"
	"github.com/xuecangming/file-manager/internal/service/transfer"
)

// TaskHandler handles task API requests
type TaskHandler struct {
	service   *task.Service
	transfers *transfer.Service
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(service *task.Service, transfers *transfer.Service) *TaskHandler {
	return &TaskHandler{
		service:   service,
		transfers: transfers,
	}
}

// GetStatus handles GET /tasks/{id}
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task, err := h.service.GetTask(id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// List handles GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks()
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tasks": tasks,
	})
}

// control applies op to the task named in the route and answers with the
// task's current state
func (h *TaskHandler) control(w http.ResponseWriter, r *http.Request, op func(string) error) {
	id := mux.Vars(r)["id"]

	if err := op(id); err != nil {
		errors.WriteError(w, err)
		return
	}

	task, err := h.service.GetTask(id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// Pause handles POST /tasks/{id}/pause
func (h *TaskHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Pause)
}

// Resume handles POST /tasks/{id}/resume
func (h *TaskHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Resume)
}

// Cancel handles POST /tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Cancel)
}

// PauseAll handles POST /tasks/pause-all
func (h *TaskHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	n := h.transfers.PauseAll()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"paused": n})
}

// ResumeAll handles POST /tasks/resume-all
func (h *TaskHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	n := h.transfers.ResumeAll()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"resumed": n})
}
