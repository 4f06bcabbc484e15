package media

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/core/cache"
	"github.com/xuecangming/file-manager/internal/core/copier"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/watcher"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
	"github.com/xuecangming/file-manager/internal/metrics"
)

// Index is the persistent media index behind the query-type listings
type Index interface {
	Query(ctx context.Context, q types.QueryType) ([]types.MediaInfo, error)
	Upsert(ctx context.Context, m types.MediaInfo) error
	DeleteTree(ctx context.Context, path string) error
	Trash(ctx context.Context, from, to string) error
}

// VolumeResolver maps a path to the volume holding it
type VolumeResolver interface {
	Resolve(path string) (types.Volume, error)
}

// Service serves cached media listings and keeps the cache and the index
// in step with the file system
type Service struct {
	cache   *cache.Coordinator
	fs      *storage.LocalStorage
	index   Index
	volumes VolumeResolver
	log     logger.Logger
}

// NewService creates a new media service. index may be nil, in which case
// query-type listings are unavailable.
func NewService(c *cache.Coordinator, fs *storage.LocalStorage, index Index, volumes VolumeResolver, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		cache:   c,
		fs:      fs,
		index:   index,
		volumes: volumes,
		log:     log,
	}
}

// IndexEnabled reports whether query-type listings are available
func (s *Service) IndexEnabled() bool {
	return s.index != nil
}

func cleanPath(path string) (string, error) {
	if !utils.ValidatePath(path) {
		return "", apperrors.InvalidPath(path)
	}
	return cache.NormalizePath(filepath.Clean(path)), nil
}

func fsError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperrors.PathNotFound(path)
	case errors.Is(err, fs.ErrPermission):
		return apperrors.NotPermitted(path, "permission denied")
	default:
		return apperrors.InternalError(err.Error())
	}
}

// List returns the listing of a directory, from the cache when fresh
func (s *Service) List(ctx context.Context, path string) ([]types.MediaInfo, error) {
	dir, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	items, err := s.cache.GetOrPut(ctx, cache.PathKey(dir), func(ctx context.Context) ([]types.MediaInfo, error) {
		return s.fs.ListDirectory(ctx, dir)
	})
	if err != nil {
		return nil, fsError(dir, err)
	}
	return items, nil
}

// Query returns a query-type listing, from the cache when fresh
func (s *Service) Query(ctx context.Context, q types.QueryType) ([]types.MediaInfo, error) {
	if !q.Valid() {
		return nil, apperrors.InvalidRequest("unknown query type").WithDetails("type", string(q))
	}
	if s.index == nil {
		return nil, apperrors.UpstreamError("media index is disabled")
	}

	items, err := s.cache.GetOrPut(ctx, cache.QueryKey(q), func(ctx context.Context) ([]types.MediaInfo, error) {
		return s.index.Query(ctx, q)
	})
	if err != nil {
		s.log.Error("media index query failed", logger.String("type", string(q)), logger.Error(err))
		return nil, apperrors.UpstreamError(err.Error())
	}
	if items == nil {
		items = []types.MediaInfo{}
	}
	return items, nil
}

// Stat returns the media item for a single path
func (s *Service) Stat(path string) (types.MediaInfo, error) {
	p, err := cleanPath(path)
	if err != nil {
		return types.MediaInfo{}, err
	}
	m, err := s.fs.Stat(p)
	if err != nil {
		return types.MediaInfo{}, fsError(p, err)
	}
	return m, nil
}

// Invalidate drops the listing of path and of every key below it
func (s *Service) Invalidate(path string) {
	s.cache.Invalidate(path)
}

// InvalidateTree drops the listing of path and of its subdirectories
func (s *Service) InvalidateTree(path string) {
	s.cache.InvalidateTree(path)
}

// InvalidateParent drops the listing of the directory containing path
func (s *Service) InvalidateParent(path string) {
	s.cache.Remove(filepath.Dir(filepath.Clean(path)))
}

// InvalidateQueries drops every query-type listing
func (s *Service) InvalidateQueries() {
	s.cache.InvalidateQueries()
}

// ClearAll drops every cached listing
func (s *Service) ClearAll() {
	s.cache.ClearAll()
	s.Stats()
}

// Stats returns the cache counters and publishes them as metrics
func (s *Service) Stats() cache.Stats {
	st := s.cache.Stats()
	metrics.SetCacheStats(st.Size, st.Hits, st.Misses, st.Evictions, st.MemoryBytes)
	return st
}

// HandleChange applies a file system change to the cache and the index
func (s *Service) HandleChange(ctx context.Context, ev watcher.Event) error {
	p := filepath.Clean(ev.Path)

	if ev.IsDir {
		s.cache.InvalidateTree(p)
	} else {
		s.cache.Remove(p)
	}
	s.InvalidateParent(p)
	s.cache.InvalidateQueries()

	if s.index == nil {
		return nil
	}

	switch ev.Type {
	case watcher.EventDelete:
		return s.index.DeleteTree(ctx, p)
	case watcher.EventCreate, watcher.EventModify:
		if ev.IsDir {
			return nil
		}
		return s.indexFile(ctx, p)
	}
	return nil
}

func (s *Service) indexFile(ctx context.Context, path string) error {
	m, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// gone again before we got to it
			return s.index.DeleteTree(ctx, path)
		}
		return err
	}
	if m.IsDir {
		return nil
	}
	if storage.IsImage(m.MimeType) {
		if x, err := storage.ReadExif(path); err == nil {
			m.DateTaken = x.DateTaken
		}
	}
	return s.index.Upsert(ctx, m)
}

// Reindex walks root and upserts every file into the index. It returns the
// number of files indexed.
func (s *Service) Reindex(ctx context.Context, root string) (int, error) {
	if s.index == nil {
		return 0, nil
	}

	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("reindex: skipping unreadable entry", logger.String("path", path), logger.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := s.indexFile(ctx, path); err != nil {
			return err
		}
		count++
		return nil
	})
	if err == nil {
		s.cache.InvalidateQueries()
	}
	return count, err
}

// Trash moves a file into the recycle bin of its volume and returns its
// new path
func (s *Service) Trash(ctx context.Context, path string) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(p)
	if err != nil {
		return "", fsError(p, err)
	}
	if storage.InTrash(p) {
		return "", apperrors.InvalidRequest("path is already in the recycle bin").WithDetails("path", p)
	}

	root := filepath.Dir(p)
	if s.volumes != nil {
		vol, err := s.volumes.Resolve(p)
		if err != nil {
			return "", apperrors.NotPermitted(p, err.Error())
		}
		root = vol.Path
	}

	trashDir := filepath.Join(root, storage.TrashDir)
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return "", fsError(trashDir, err)
	}
	target := copier.UniqueName(filepath.Join(trashDir, filepath.Base(p)))
	if err := os.Rename(p, target); err != nil {
		return "", fsError(p, err)
	}

	if info.IsDir() {
		s.cache.InvalidateTree(p)
	}
	s.InvalidateParent(p)
	s.cache.InvalidateQueries()

	if s.index != nil && !info.IsDir() {
		if err := s.index.Trash(ctx, p, target); err != nil {
			s.log.Warn("failed to record trashed file in index", logger.String("path", p), logger.Error(err))
		}
	}
	s.log.Info("moved to recycle bin", logger.String("path", p), logger.String("target", target))
	return target, nil
}
