package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	apperrors "github.com/xuecangming/file-manager/internal/common/errors"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/cache"
	"github.com/xuecangming/file-manager/internal/core/watcher"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
)

type fakeIndex struct {
	mu       sync.Mutex
	rows     map[string]types.MediaInfo
	queries  int
	deleted  []string
	trashed  map[string]string
	queryErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{rows: map[string]types.MediaInfo{}, trashed: map[string]string{}}
}

func (f *fakeIndex) Query(ctx context.Context, q types.QueryType) ([]types.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []types.MediaInfo
	for _, m := range f.rows {
		if storage.MatchesQuery(q, m.MimeType) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeIndex) Upsert(ctx context.Context, m types.MediaInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[m.Path] = m
	return nil
}

func (f *fakeIndex) DeleteTree(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	delete(f.rows, path)
	return nil
}

func (f *fakeIndex) Trash(ctx context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trashed[from] = to
	return nil
}

type fixedVolume struct{ root string }

func (v fixedVolume) Resolve(path string) (types.Volume, error) {
	return types.Volume{Name: "test", Path: v.root, Mounted: true}, nil
}

func newService(t *testing.T, index Index) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	svc := NewService(cache.NewCoordinator(nil), storage.NewLocalStorage(false), index, fixedVolume{root}, nil)
	return svc, root
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func appCode(err error) apperrors.ErrorCode {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func TestList_ServesFromCacheUntilInvalidated(t *testing.T) {
	svc, root := newService(t, nil)
	ctx := context.Background()
	write(t, filepath.Join(root, "a.jpg"), "x")

	items, err := svc.List(ctx, root+"/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d", len(items))
	}

	write(t, filepath.Join(root, "b.jpg"), "y")
	items, _ = svc.List(ctx, root)
	if len(items) != 1 {
		t.Errorf("second listing should come from the cache, got %d items", len(items))
	}

	svc.Invalidate(root)
	items, _ = svc.List(ctx, root)
	if len(items) != 2 {
		t.Errorf("after invalidate got %d items, want 2", len(items))
	}

	st := svc.Stats()
	if st.Hits != 1 || st.Misses != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestList_Errors(t *testing.T) {
	svc, root := newService(t, nil)
	ctx := context.Background()

	if _, err := svc.List(ctx, filepath.Join(root, "missing")); appCode(err) != apperrors.ErrPathNotFound {
		t.Errorf("missing dir: %v", err)
	}
	if _, err := svc.List(ctx, "relative/dir"); appCode(err) != apperrors.ErrInvalidPath {
		t.Errorf("relative path: %v", err)
	}
	if _, err := svc.List(ctx, root+"/../etc"); appCode(err) != apperrors.ErrInvalidPath {
		t.Errorf("traversal: %v", err)
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	disabled, _ := newService(t, nil)
	if _, err := disabled.Query(ctx, types.QueryAllImages); appCode(err) != apperrors.ErrUpstreamError {
		t.Errorf("disabled index: %v", err)
	}

	index := newFakeIndex()
	svc, _ := newService(t, index)
	index.rows["/sd/a.jpg"] = types.MediaInfo{Path: "/sd/a.jpg", MimeType: "image/jpeg"}
	index.rows["/sd/b.mp4"] = types.MediaInfo{Path: "/sd/b.mp4", MimeType: "video/mp4"}

	if _, err := svc.Query(ctx, "EVERYTHING"); appCode(err) != apperrors.ErrInvalidRequest {
		t.Errorf("unknown type: %v", err)
	}

	for i := 0; i < 3; i++ {
		items, err := svc.Query(ctx, types.QueryAllImages)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].Path != "/sd/a.jpg" {
			t.Errorf("items = %+v", items)
		}
	}
	if index.queries != 1 {
		t.Errorf("index queried %d times, want 1", index.queries)
	}

	audio, err := svc.Query(ctx, types.QueryAllAudio)
	if err != nil || audio == nil || len(audio) != 0 {
		t.Errorf("empty listing = %v, %v", audio, err)
	}

	index.queryErr = errors.New("connection refused")
	if _, err := svc.Query(ctx, types.QueryAllVideos); appCode(err) != apperrors.ErrUpstreamError {
		t.Errorf("index failure: %v", err)
	}
}

func TestHandleChange(t *testing.T) {
	index := newFakeIndex()
	svc, root := newService(t, index)
	ctx := context.Background()

	sub := filepath.Join(root, "DCIM")
	os.Mkdir(sub, 0o755)
	svc.List(ctx, root)
	svc.List(ctx, sub)
	svc.Query(ctx, types.QueryAllImages)

	photo := filepath.Join(sub, "p.png")
	write(t, photo, "png")
	if err := svc.HandleChange(ctx, watcher.Event{Type: watcher.EventCreate, Path: photo}); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	st := svc.Stats()
	if st.Size != 1 {
		t.Errorf("cache size = %d, want only the root listing left", st.Size)
	}
	if m, ok := index.rows[photo]; !ok || m.MimeType != "image/png" {
		t.Errorf("index row = %+v", m)
	}

	os.Remove(photo)
	svc.HandleChange(ctx, watcher.Event{Type: watcher.EventDelete, Path: photo})
	if _, ok := index.rows[photo]; ok {
		t.Error("deleted file still indexed")
	}

	svc.HandleChange(ctx, watcher.Event{Type: watcher.EventDelete, Path: sub, IsDir: true})
	if last := index.deleted[len(index.deleted)-1]; last != sub {
		t.Errorf("DeleteTree(%q), want %q", last, sub)
	}
}

func TestReindex(t *testing.T) {
	index := newFakeIndex()
	svc, root := newService(t, index)

	os.MkdirAll(filepath.Join(root, "Music", "Album"), 0o755)
	write(t, filepath.Join(root, "Music", "Album", "01.flac"), "a")
	write(t, filepath.Join(root, "notes.txt"), "b")

	n, err := svc.Reindex(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(index.rows) != 2 {
		t.Errorf("indexed %d files, rows = %d", n, len(index.rows))
	}

	disabled, _ := newService(t, nil)
	if n, err := disabled.Reindex(context.Background(), root); n != 0 || err != nil {
		t.Errorf("disabled reindex = %d, %v", n, err)
	}
}

func TestTrash(t *testing.T) {
	index := newFakeIndex()
	svc, root := newService(t, index)
	ctx := context.Background()

	p := filepath.Join(root, "old.txt")
	write(t, p, "bye")
	svc.List(ctx, root)

	target, err := svc.Trash(ctx, p)
	if err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if target != filepath.Join(root, storage.TrashDir, "old.txt") {
		t.Errorf("target = %s", target)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("source still exists")
	}
	if index.trashed[p] != target {
		t.Errorf("index trash = %v", index.trashed)
	}

	items, _ := svc.List(ctx, root)
	if len(items) != 0 {
		t.Errorf("listing after trash = %+v", items)
	}

	write(t, p, "again")
	second, _ := svc.Trash(ctx, p)
	if filepath.Base(second) != "old (1).txt" {
		t.Errorf("second trash target = %s", second)
	}

	if _, err := svc.Trash(ctx, second); appCode(err) != apperrors.ErrInvalidRequest {
		t.Errorf("trashing from the recycle bin: %v", err)
	}
	if _, err := svc.Trash(ctx, p); appCode(err) != apperrors.ErrPathNotFound {
		t.Errorf("trashing a missing file: %v", err)
	}
}
