package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func drain(ch chan Event) map[string]string {
	got := make(map[string]string)
	for {
		select {
		case e := <-ch:
			got[e.Path] = e.Type
		default:
			return got
		}
	}
}

func TestCheckChanges(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.txt")
	gone := filepath.Join(root, "gone.txt")
	os.WriteFile(keep, []byte("a"), 0o644)
	os.WriteFile(gone, []byte("b"), 0o644)

	w := New([]string{root}, time.Hour, nil)
	w.Start(context.Background())
	defer w.Stop()
	ch := w.Subscribe()

	created := filepath.Join(root, "DCIM", "new.jpg")
	os.MkdirAll(filepath.Dir(created), 0o755)
	os.WriteFile(created, []byte("c"), 0o644)
	os.Remove(gone)
	later := time.Now().Add(time.Hour)
	os.Chtimes(keep, later, later)

	w.checkChanges()
	got := drain(ch)

	want := map[string]string{
		filepath.Join(root, "DCIM"): EventCreate,
		created:                     EventCreate,
		gone:                        EventDelete,
		keep:                        EventModify,
	}
	for path, typ := range want {
		if got[path] != typ {
			t.Errorf("%s: got %q, want %q", path, got[path], typ)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d events, want %d: %v", len(got), len(want), got)
	}

	w.checkChanges()
	if again := drain(ch); len(again) != 0 {
		t.Errorf("unchanged tree produced events: %v", again)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	w := New([]string{t.TempDir()}, time.Hour, nil)
	ch := w.Subscribe()
	w.Unsubscribe(ch)
	w.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestWatchLoop_DeliversEvents(t *testing.T) {
	root := t.TempDir()
	w := New([]string{root}, 10*time.Millisecond, nil)
	ch := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	target := filepath.Join(root, "song.mp3")
	os.WriteFile(target, []byte("x"), 0o644)

	select {
	case e := <-ch:
		if e.Path != target || e.Type != EventCreate {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}
