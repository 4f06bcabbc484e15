package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	// 400 errors
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidPath    ErrorCode = "INVALID_PATH"

	// 403 errors
	ErrNotPermitted ErrorCode = "NOT_PERMITTED"

	// 404 errors
	ErrPathNotFound ErrorCode = "PATH_NOT_FOUND"
	ErrTaskNotFound ErrorCode = "TASK_NOT_FOUND"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// 409 errors
	ErrFileExists   ErrorCode = "FILE_EXISTS"
	ErrTaskFinished ErrorCode = "TASK_FINISHED"
	ErrConflict     ErrorCode = "CONFLICT"

	// 507 errors
	ErrStorageFull ErrorCode = "STORAGE_FULL"

	// 500 errors
	ErrInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCopyFailed    ErrorCode = "COPY_FAILED"
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Details:    make(map[string]interface{}),
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	e.Details[key] = value
	return e
}

// Common error constructors
func InvalidRequest(message string) *AppError {
	return NewAppError(ErrInvalidRequest, message, http.StatusBadRequest)
}

func InvalidPath(path string) *AppError {
	return NewAppError(ErrInvalidPath, "Invalid path", http.StatusBadRequest).
		WithDetails("path", path)
}

func NotPermitted(path, reason string) *AppError {
	return NewAppError(ErrNotPermitted, "Operation not permitted", http.StatusForbidden).
		WithDetails("path", path).
		WithDetails("reason", reason)
}

func PathNotFound(path string) *AppError {
	return NewAppError(ErrPathNotFound, "Path not found", http.StatusNotFound).
		WithDetails("path", path)
}

func TaskNotFound(id string) *AppError {
	return NewAppError(ErrTaskNotFound, "Task not found", http.StatusNotFound).
		WithDetails("task_id", id)
}

func FileExists(path string) *AppError {
	return NewAppError(ErrFileExists, "Destination already exists", http.StatusConflict).
		WithDetails("path", path)
}

func TaskFinished(id, status string) *AppError {
	return NewAppError(ErrTaskFinished, "Task already finished", http.StatusConflict).
		WithDetails("task_id", id).
		WithDetails("status", status)
}

func NotFound(message string) *AppError {
	return NewAppError(ErrNotFound, message, http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return NewAppError(ErrConflict, message, http.StatusConflict)
}

func StorageFull(path string, required, available int64) *AppError {
	return NewAppError(ErrStorageFull, "Insufficient storage space", http.StatusInsufficientStorage).
		WithDetails("path", path).
		WithDetails("required", required).
		WithDetails("available", available)
}

func InternalError(message string) *AppError {
	return NewAppError(ErrInternal, message, http.StatusInternalServerError)
}

func CopyFailed(src, dst string, cause error) *AppError {
	e := NewAppError(ErrCopyFailed, "Copy failed", http.StatusInternalServerError).
		WithDetails("source", src).
		WithDetails("destination", dst)
	if cause != nil {
		e.WithDetails("cause", cause.Error())
	}
	return e
}

func UpstreamError(message string) *AppError {
	return NewAppError(ErrUpstreamError, message, http.StatusBadGateway)
}

// ErrorResponse is the JSON body written for failed requests
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// WriteError writes err as a JSON error response. Errors that are not an
// AppError become a 500 INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(ErrorResponse{Error: appErr})
}
