package handlers

import (
	stderrors "errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
)

// FileHandler streams file content and thumbnails for preview
type FileHandler struct {
	storage *storage.LocalStorage
}

// NewFileHandler creates a new file handler
func NewFileHandler(s *storage.LocalStorage) *FileHandler {
	return &FileHandler{storage: s}
}

func filePath(r *http.Request) (string, error) {
	path := r.URL.Query().Get("path")
	if path == "" {
		return "", errors.InvalidRequest("path parameter is required")
	}
	if !utils.ValidatePath(path) {
		return "", errors.InvalidPath(path)
	}
	return filepath.Clean(path), nil
}

// Content handles GET and HEAD /files/content?path=. Range requests are
// answered by http.ServeContent.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	path, err := filePath(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	f, info, err := h.storage.Open(path)
	if err != nil {
		if !h.storage.Exists(path) {
			errors.WriteError(w, errors.PathNotFound(path))
			return
		}
		errors.WriteError(w, errors.InvalidPath(path).WithDetails("reason", err.Error()))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.MimeType(info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Thumbnail handles GET /files/thumbnail?path=&size=
func (h *FileHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	path, err := filePath(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	size := storage.DefaultThumbSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			errors.WriteError(w, errors.InvalidRequest("size must be a positive integer"))
			return
		}
		size = n
	}

	if !h.storage.Exists(path) {
		errors.WriteError(w, errors.PathNotFound(path))
		return
	}

	data, err := storage.Thumbnail(path, size)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotImage) {
			errors.WriteError(w, errors.NewAppError(errors.ErrInvalidRequest, "file is not an image", http.StatusUnsupportedMediaType).WithDetails("path", path))
			return
		}
		errors.WriteError(w, errors.InternalError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
