package copier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWorker_CopiesOnlyItsRange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	data := writeRandomFile(t, src, 1000)
	zeros := make([]byte, 1000)
	if err := os.WriteFile(dst, zeros, 0o644); err != nil {
		t.Fatal(err)
	}

	w := &Worker{
		Source:      src,
		Destination: dst,
		Range:       Range{Start: 300, End: 599},
		TotalSize:   1000,
		BufferSize:  64,
	}
	n, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 300 {
		t.Errorf("written = %d, want 300", n)
	}

	got, _ := os.ReadFile(dst)
	if !bytes.Equal(got[300:600], data[300:600]) {
		t.Error("range content mismatch")
	}
	if !bytes.Equal(got[:300], zeros[:300]) || !bytes.Equal(got[600:], zeros[600:]) {
		t.Error("worker wrote outside its range")
	}
}

func TestWorker_ProgressPerIteration(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 1000)

	l := &recordingListener{}
	w := &Worker{
		Source:      src,
		Destination: dst,
		Range:       Range{Start: 0, End: 999},
		TotalSize:   1000,
		BufferSize:  100,
		Listener:    l,
	}
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := l.progress.Load(); got != 1000 {
		t.Errorf("progress = %d, want 1000", got)
	}
}

func TestWorker_UnexpectedEOF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 100)

	w := &Worker{Source: src, Destination: dst, Range: Range{Start: 50, End: 199}}
	n, err := w.Run(context.Background())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
	if n != 50 {
		t.Errorf("written = %d, want 50", n)
	}
}

func TestWorker_CancelEmitsEvent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeRandomFile(t, src, 100)

	ctl := NewController()
	ctl.Cancel()
	l := &recordingListener{}
	w := &Worker{Source: src, Destination: dst, Range: Range{Start: 0, End: 99}, Listener: l, Controller: ctl}

	n, err := w.Run(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if n != 0 {
		t.Errorf("written = %d, want 0", n)
	}
	if l.cancelled != 1 {
		t.Errorf("cancelled events = %d, want 1", l.cancelled)
	}
}

func TestWorker_MissingSource(t *testing.T) {
	dir := t.TempDir()
	w := &Worker{Source: filepath.Join(dir, "missing"), Destination: filepath.Join(dir, "dst"), Range: Range{Start: 0, End: 9}}
	if _, err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestController_CancelIsPermanent(t *testing.T) {
	ctl := NewController()
	ctl.Pause()
	if !ctl.IsPaused() {
		t.Fatal("IsPaused = false after Pause")
	}
	ctl.Cancel()
	ctl.Resume()
	if !ctl.IsCancelled() {
		t.Error("Cancel must not be undone by Resume")
	}
	ctl.Pause()
	if ctl.IsPaused() {
		t.Error("Pause after Cancel should be ignored")
	}
}

func TestController_ResumeWakesWaiter(t *testing.T) {
	var ctl Controller
	ctl.Pause()

	done := make(chan bool, 1)
	go func() {
		done <- ctl.waitWhilePaused(context.Background(), time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	ctl.Resume()

	select {
	case ok := <-done:
		if !ok {
			t.Error("waitWhilePaused = false after Resume, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resume did not wake the waiter")
	}
}

func TestController_CancelWakesWaiter(t *testing.T) {
	ctl := NewController()
	ctl.Pause()

	done := make(chan bool, 1)
	go func() {
		done <- ctl.waitWhilePaused(context.Background(), time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	ctl.Cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("waitWhilePaused = true after Cancel, want false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not wake the waiter")
	}
}

func TestNextAvailableName(t *testing.T) {
	taken := map[string]bool{
		"/sdcard/a.jpg":         true,
		"/sdcard/a (1).jpg":     true,
		"/sdcard/notes":         true,
		"/sdcard/.profile":      true,
		"/sdcard/x.tar.gz":      true,
		"/sdcard/report (1).md": true,
	}
	exists := func(p string) bool { return taken[p] }

	tests := []struct {
		in   string
		want string
	}{
		{"/sdcard/free.txt", "/sdcard/free.txt"},
		{"/sdcard/a.jpg", "/sdcard/a (2).jpg"},
		{"/sdcard/notes", "/sdcard/notes (1)"},
		{"/sdcard/.profile", "/sdcard/.profile (1)"},
		{"/sdcard/x.tar.gz", "/sdcard/x.tar (1).gz"},
		{"/sdcard/report (1).md", "/sdcard/report (1) (1).md"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NextAvailableName(tt.in, exists); got != tt.want {
				t.Errorf("NextAvailableName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
