package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/watcher"
)

type fakeIndex struct {
	entries []types.MediaInfo
	err     error
	block   chan struct{}
}

func (f *fakeIndex) ListAfter(ctx context.Context, after string, limit int) ([]types.MediaInfo, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	sort.Slice(f.entries, func(i, j int) bool { return f.entries[i].Path < f.entries[j].Path })
	var out []types.MediaInfo
	for _, e := range f.entries {
		if e.Path > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRefresher struct {
	mu     sync.Mutex
	events []watcher.Event
}

func (f *fakeRefresher) HandleChange(ctx context.Context, ev watcher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func entryFor(t *testing.T, path string) types.MediaInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return types.MediaInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

func TestAudit_FindsAndRepairsIssues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jpg")
	stale := filepath.Join(dir, "stale.jpg")
	os.WriteFile(good, []byte("good"), 0o644)
	os.WriteFile(stale, []byte("old"), 0o644)

	staleEntry := entryFor(t, stale)
	os.WriteFile(stale, []byte("new contents"), 0o644)

	index := &fakeIndex{entries: []types.MediaInfo{
		entryFor(t, good),
		staleEntry,
		{Path: filepath.Join(dir, "gone.jpg"), Size: 10, ModTime: time.Now()},
	}}
	refresh := &fakeRefresher{}
	svc := NewService(index, refresh, nil)

	if _, err := svc.StartAudit(true); err != nil {
		t.Fatalf("StartAudit: %v", err)
	}
	svc.Wait()

	report := svc.GetStatus()
	if report.Status != "completed" || report.TotalEntries != 3 || report.Repaired != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Issues) != 2 {
		t.Fatalf("issues = %+v", report.Issues)
	}
	got := map[string]string{}
	for _, is := range report.Issues {
		got[filepath.Base(is.Path)] = is.Type
	}
	if got["gone.jpg"] != "missing_file" || got["stale.jpg"] != "stale_entry" {
		t.Errorf("issues = %v", got)
	}

	kinds := map[string]string{}
	for _, ev := range refresh.events {
		kinds[filepath.Base(ev.Path)] = ev.Type
	}
	if kinds["gone.jpg"] != watcher.EventDelete || kinds["stale.jpg"] != watcher.EventModify {
		t.Errorf("repair events = %v", kinds)
	}
}

func TestAudit_ReportOnly(t *testing.T) {
	index := &fakeIndex{entries: []types.MediaInfo{{Path: "/nonexistent/file.png"}}}
	refresh := &fakeRefresher{}
	svc := NewService(index, refresh, nil)

	svc.StartAudit(false)
	svc.Wait()

	report := svc.GetStatus()
	if len(report.Issues) != 1 || report.Repaired != 0 || len(refresh.events) != 0 {
		t.Errorf("report = %+v, events = %v", report, refresh.events)
	}
}

func TestAudit_SingleRun(t *testing.T) {
	index := &fakeIndex{block: make(chan struct{})}
	svc := NewService(index, &fakeRefresher{}, nil)

	if svc.GetStatus() != nil {
		t.Error("status before any audit should be nil")
	}
	if _, err := svc.StartAudit(false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartAudit(false); !errors.Is(err, ErrRunning) {
		t.Errorf("second start err = %v, want ErrRunning", err)
	}
	close(index.block)
	svc.Wait()

	if _, err := svc.StartAudit(false); err != nil {
		t.Errorf("start after completion: %v", err)
	}
	svc.Wait()
}

func TestAudit_IndexError(t *testing.T) {
	svc := NewService(&fakeIndex{err: errors.New("connection refused")}, &fakeRefresher{}, nil)
	svc.StartAudit(false)
	svc.Wait()

	report := svc.GetStatus()
	if report.Status != "failed" || report.Error != "connection refused" || report.EndTime == nil {
		t.Errorf("report = %+v", report)
	}
}
