package copier

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingListener struct {
	mu        sync.Mutex
	progress  atomic.Int64
	exists    []string
	done      []Result
	cancelled int
	failed    []error
	denied    []string
}

func (l *recordingListener) OnProgress(p Progress) { l.progress.Add(p.BytesRead) }

func (l *recordingListener) OnFileExists(dst string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exists = append(l.exists, dst)
}

func (l *recordingListener) OnDone(r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = append(l.done, r)
}

func (l *recordingListener) OnCancelled(string, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled++
}

func (l *recordingListener) OnFailed(_, _ string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, err)
}

func (l *recordingListener) OnNotPermitted(path string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denied = append(l.denied, path)
}

// truncatingListener empties the source after the first chunk progress so
// every worker still reading runs into an early EOF.
type truncatingListener struct {
	*recordingListener
	source string
	once   sync.Once
}

func (l *truncatingListener) OnProgress(p Progress) {
	l.recordingListener.OnProgress(p)
	l.once.Do(func() { os.Truncate(l.source, 0) })
}

// stubOpenFile makes destination creation fail with err until the test ends.
func stubOpenFile(t *testing.T, err error) {
	t.Helper()
	orig := openFile
	openFile = func(name string, _ int, _ os.FileMode) (*os.File, error) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	t.Cleanup(func() { openFile = orig })
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func writeRandomFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return data
}

func assertContent(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch in %s: got %d bytes, want %d bytes", path, len(got), len(want))
	}
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("%s should not exist (err=%v)", path, err)
	}
}

// smallChunks makes multi-threaded copies of kilobyte-sized test files.
func smallChunks() Options {
	return Options{
		BufferSize:     128,
		ChunkThreshold: 1024,
		MaxThreads:     DefaultMaxThreads,
		PollInterval:   10 * time.Millisecond,
	}
}

func TestThreadCount(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		name string
		size int64
		want int
	}{
		{"empty", 0, 1},
		{"tiny", 1, 1},
		{"just under threshold", 10*mb - 1, 1},
		{"one threshold", 10 * mb, 1},
		{"25MB", 25 * mb, 2},
		{"35MB", 35 * mb, 3},
		{"80MB", 80 * mb, 8},
		{"1GB", 1024 * mb, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThreadCount(tt.size, DefaultChunkThreshold, DefaultMaxThreads)
			if got != tt.want {
				t.Errorf("ThreadCount(%d) = %d, want %d", tt.size, got, tt.want)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	sizes := []int64{0, 1, 2, 4095, 4096, 10 * 1024 * 1024, 25*1024*1024 + 7, 81 * 1024 * 1024, 1<<30 + 3}

	for _, size := range sizes {
		ranges := Partition(size, DefaultChunkThreshold, DefaultMaxThreads)
		if len(ranges) < 1 || len(ranges) > DefaultMaxThreads {
			t.Fatalf("size %d: %d chunks, want 1..8", size, len(ranges))
		}
		if len(ranges) != ThreadCount(size, DefaultChunkThreshold, DefaultMaxThreads) {
			t.Errorf("size %d: %d chunks, want %d", size, len(ranges), ThreadCount(size, DefaultChunkThreshold, DefaultMaxThreads))
		}

		var total int64
		next := int64(0)
		for i, r := range ranges {
			if r.Index != i {
				t.Errorf("size %d: chunk %d has index %d", size, i, r.Index)
			}
			if r.Start != next {
				t.Errorf("size %d: chunk %d starts at %d, want %d", size, i, r.Start, next)
			}
			total += r.Len()
			next = r.End + 1
		}
		if total != size {
			t.Errorf("size %d: chunks cover %d bytes", size, total)
		}
	}
}

func TestPartition_LastChunkAbsorbsRemainder(t *testing.T) {
	ranges := Partition(10, 3, 8)
	if len(ranges) != 3 {
		t.Fatalf("got %d chunks, want 3", len(ranges))
	}
	last := ranges[len(ranges)-1]
	if last.Start != 6 || last.End != 9 {
		t.Errorf("last chunk = %v, want [6-9]", last)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", PolicyRename, false},
		{"rename", PolicyRename, false},
		{"SKIP", PolicySkip, false},
		{" overwrite ", PolicyOverwrite, false},
		{"report", PolicyReportIfExists, false},
		{"report_if_exists", PolicyReportIfExists, false},
		{"merge", PolicyRename, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCopy_MultiChunk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "out", "dst.bin")
	data := writeRandomFile(t, src, 10*1024+17)

	l := &recordingListener{}
	res, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyRename, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	assertContent(t, dst, data)
	if res.Threads != 8 {
		t.Errorf("Threads = %d, want 8", res.Threads)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Size, len(data))
	}
	if got := l.progress.Load(); got != int64(len(data)) {
		t.Errorf("progress total = %d, want %d", got, len(data))
	}
	if len(l.done) != 1 {
		t.Errorf("done events = %d, want 1", len(l.done))
	}
}

func TestCopy_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty")
	dst := filepath.Join(dir, "empty.copy")
	writeRandomFile(t, src, 0)

	res, err := New(DefaultOptions(), nil).Copy(context.Background(), src, dst, PolicyRename, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if res.Threads != 1 {
		t.Errorf("Threads = %d, want 1", res.Threads)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestCopy_RenameOnConflict(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "photo.jpg")
	data := writeRandomFile(t, src, 3000)
	old := writeRandomFile(t, dst, 10)

	res, err := New(smallChunks(), nil).Copy(context.Background(), src, dst, PolicyRename, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	want := filepath.Join(dir, "photo (1).jpg")
	if res.Destination != want {
		t.Errorf("Destination = %q, want %q", res.Destination, want)
	}
	assertContent(t, want, data)
	assertContent(t, dst, old)
}

func TestCopy_ReportIfExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 100)
	old := writeRandomFile(t, dst, 10)

	l := &recordingListener{}
	_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyReportIfExists, nil)
	if !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("err = %v, want ErrDestinationExists", err)
	}
	if len(l.exists) != 1 || l.exists[0] != dst {
		t.Errorf("exists events = %v, want [%s]", l.exists, dst)
	}
	assertContent(t, dst, old)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2", len(entries))
	}
}

func TestCopy_Skip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 100)
	old := writeRandomFile(t, dst, 10)

	l := &recordingListener{}
	_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicySkip, nil)
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("err = %v, want ErrSkipped", err)
	}
	if len(l.exists) != 0 || len(l.failed) != 0 {
		t.Errorf("skip should be silent, got exists=%v failed=%v", l.exists, l.failed)
	}
	assertContent(t, dst, old)
}

func TestCopy_Overwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	data := writeRandomFile(t, src, 5000)
	writeRandomFile(t, dst, 99999)

	res, err := New(smallChunks(), nil).Copy(context.Background(), src, dst, PolicyOverwrite, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if res.Destination != dst {
		t.Errorf("Destination = %q, want %q", res.Destination, dst)
	}
	assertContent(t, dst, data)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestCopy_OverwriteSameFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	data := writeRandomFile(t, src, 100)

	_, err := New(smallChunks(), nil).Copy(context.Background(), src, src, PolicyOverwrite, nil)
	if err == nil {
		t.Fatal("expected error copying a file over itself")
	}
	assertContent(t, src, data)
}

func TestCopy_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 4096)

	ctl := NewController()
	ctl.Cancel()

	l := &recordingListener{}
	_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyRename, ctl)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	assertNotExist(t, dst)
	if l.cancelled != 1 {
		t.Errorf("cancelled events = %d, want 1", l.cancelled)
	}
	if len(l.done) != 0 {
		t.Errorf("unexpected done event")
	}
}

func TestCopy_CancelWhilePausedOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 8192)
	old := writeRandomFile(t, dst, 64)

	ctl := NewController()
	ctl.Pause()

	l := &recordingListener{}
	errc := make(chan error, 1)
	go func() {
		_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyOverwrite, ctl)
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	ctl.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("copy did not stop after cancel")
	}

	assertContent(t, dst, old)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2 (temp file must be removed)", len(entries))
	}
	if l.cancelled != 1 {
		t.Errorf("cancelled events = %d, want 1", l.cancelled)
	}
}

func TestCopy_PauseResume(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	data := writeRandomFile(t, src, 6000)

	ctl := NewController()
	ctl.Pause()

	l := &recordingListener{}
	errc := make(chan error, 1)
	go func() {
		_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyRename, ctl)
		errc <- err
	}()

	time.Sleep(60 * time.Millisecond)
	if got := l.progress.Load(); got != 0 {
		t.Fatalf("%d bytes copied while paused", got)
	}

	ctl.Resume()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Copy: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("copy did not finish after resume")
	}

	assertContent(t, dst, data)
	if got := l.progress.Load(); got != int64(len(data)) {
		t.Errorf("progress total = %d, want %d", got, len(data))
	}
}

func TestCopy_ContextCancel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(smallChunks(), nil).Copy(ctx, src, dst, PolicyRename, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	assertNotExist(t, dst)
}

func TestCopy_MissingSource(t *testing.T) {
	dir := t.TempDir()
	l := &recordingListener{}
	_, err := New(smallChunks(), l).Copy(context.Background(), filepath.Join(dir, "nope"), filepath.Join(dir, "dst"), PolicyRename, nil)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if len(l.failed) != 1 {
		t.Errorf("failed events = %d, want 1", len(l.failed))
	}
}

func TestRun_ChunkFailureCancelsSiblings(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 2048)
	if err := os.WriteFile(dst, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// The job claims more bytes than the source holds, so the last chunk
	// hits EOF early.
	c := New(smallChunks(), nil)
	job := &Job{
		Source:      src,
		Destination: dst,
		Target:      dst,
		Size:        4096,
		Chunks:      Partition(4096, 1024, 8),
	}
	ctl := NewController()
	_, err := c.run(context.Background(), job, ctl)
	if err == nil {
		t.Fatal("expected chunk failure")
	}
	if errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want the underlying read failure", err)
	}
	if !ctl.IsCancelled() {
		t.Error("controller should be cancelled after a chunk failure")
	}
}

func TestCopy_SourceShrinksMidCopy(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		existing bool
	}{
		{"rename", PolicyRename, false},
		{"rename over existing", PolicyRename, true},
		{"overwrite", PolicyOverwrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src")
			dst := filepath.Join(dir, "dst")
			writeRandomFile(t, src, 8192)
			want := []string{"src"}
			var old []byte
			if tt.existing {
				old = writeRandomFile(t, dst, 300)
				want = []string{"dst", "src"}
			}

			l := &truncatingListener{recordingListener: &recordingListener{}, source: src}
			_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, tt.policy, nil)
			if err == nil {
				t.Fatal("expected failure after the source shrank")
			}
			if errors.Is(err, ErrCancelled) {
				t.Errorf("err = %v, want the read failure", err)
			}

			if len(l.failed) != 1 {
				t.Errorf("failed events = %d, want 1", len(l.failed))
			}
			if l.cancelled != 0 || len(l.done) != 0 {
				t.Errorf("cancelled=%d done=%d, want none", l.cancelled, len(l.done))
			}

			got := dirNames(t, dir)
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("directory holds %v, want %v", got, want)
			}
			if tt.existing {
				assertContent(t, dst, old)
			}
		})
	}
}

func TestVerify_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dst")
	writeRandomFile(t, target, 100)

	tests := []struct {
		name    string
		size    int64
		written int64
	}{
		{"short write", 100, 60},
		{"short file", 200, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verify(&Job{Target: target, Size: tt.size}, tt.written)
			if !errors.Is(err, ErrSizeMismatch) {
				t.Errorf("verify() = %v, want ErrSizeMismatch", err)
			}
		})
	}

	if err := verify(&Job{Target: target, Size: 100}, 100); err != nil {
		t.Errorf("verify() on a complete file = %v", err)
	}
}

func TestCopy_PermissionDenied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 4096)
	stubOpenFile(t, fs.ErrPermission)

	l := &recordingListener{}
	_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyRename, nil)
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("err = %v, want a permission error", err)
	}
	if len(l.denied) != 1 || l.denied[0] != dst {
		t.Errorf("not permitted events = %v, want [%s]", l.denied, dst)
	}
	if len(l.failed) != 0 {
		t.Errorf("failed events = %d, want 0", len(l.failed))
	}
}

func TestCopy_ReadOnlyDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeRandomFile(t, src, 1024)
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })
	dst := filepath.Join(locked, "dst")

	l := &recordingListener{}
	if _, err := New(smallChunks(), l).Copy(context.Background(), src, dst, PolicyRename, nil); err == nil {
		t.Fatal("expected copy into a read-only directory to fail")
	}
	if len(l.denied) != 1 || l.denied[0] != dst {
		t.Errorf("not permitted events = %v, want [%s]", l.denied, dst)
	}
	assertNotExist(t, dst)
}

func TestCopy_DestinationAppearsAfterPlan(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		want       error
		wantExists int
	}{
		{"report", PolicyReportIfExists, ErrDestinationExists, 1},
		{"skip", PolicySkip, ErrSkipped, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src")
			dst := filepath.Join(dir, "dst")
			writeRandomFile(t, src, 100)
			stubOpenFile(t, fs.ErrExist)

			l := &recordingListener{}
			_, err := New(smallChunks(), l).Copy(context.Background(), src, dst, tt.policy, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(l.exists) != tt.wantExists {
				t.Errorf("exists events = %v, want %d", l.exists, tt.wantExists)
			}
			if len(l.failed) != 0 {
				t.Errorf("failed events = %v, want none", l.failed)
			}
		})
	}
}
