package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xuecangming/file-manager/internal/common/types"
)

// ContentURIPrefix prefixes the opaque content URI of every media item.
const ContentURIPrefix = "content://media/"

// LocalStorage lists and reads files on the local file system
type LocalStorage struct {
	showHidden bool
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(showHidden bool) *LocalStorage {
	return &LocalStorage{showHidden: showHidden}
}

// ListDirectory returns the entries of dir, directories first, then by
// case-insensitive name.
func (s *LocalStorage) ListDirectory(ctx context.Context, dir string) ([]types.MediaInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := make([]types.MediaInfo, 0, len(entries))
	for i, e := range entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !s.showHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		items = append(items, MediaFromFileInfo(filepath.Join(dir, e.Name()), info))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].DisplayName) < strings.ToLower(items[j].DisplayName)
	})
	return items, nil
}

// Stat returns the media item for path
func (s *LocalStorage) Stat(path string) (types.MediaInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.MediaInfo{}, err
	}
	return MediaFromFileInfo(path, info), nil
}

// Open opens a regular file for reading
func (s *LocalStorage) Open(path string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	return f, info, nil
}

// Remove deletes a file
func (s *LocalStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MediaID returns a stable identifier for path
func MediaID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Clean(path))).String()
}

// MediaFromFileInfo builds the media item for path
func MediaFromFileInfo(path string, info fs.FileInfo) types.MediaInfo {
	id := MediaID(path)
	m := types.MediaInfo{
		ID:          id,
		URI:         ContentURIPrefix + id,
		Path:        path,
		DisplayName: info.Name(),
		Bucket:      filepath.Base(filepath.Dir(path)),
		ModTime:     info.ModTime().UTC(),
		IsDir:       info.IsDir(),
	}
	if !m.IsDir {
		m.Size = info.Size()
		m.MimeType = MimeType(info.Name())
	}
	return m
}
