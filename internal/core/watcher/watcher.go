// Package watcher polls directory trees and reports created, modified and
// deleted entries.
package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/core/logger"
)

// Event types.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
)

// Event represents a file system change.
type Event struct {
	Type  string `json:"type"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Time  int64  `json:"time"`
}

type entry struct {
	mtime int64
	isDir bool
}

// Watcher polls a set of roots for changes.
type Watcher struct {
	roots    []string
	interval time.Duration
	log      logger.Logger

	mu    sync.RWMutex
	state map[string]entry // absolute path -> last seen
	subs  map[chan Event]struct{}

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a new file watcher.
func New(roots []string, interval time.Duration, log logger.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		clean = append(clean, filepath.Clean(r))
	}
	return &Watcher{
		roots:    clean,
		interval: interval,
		log:      log,
		state:    make(map[string]entry),
		subs:     make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
}

// Start records the initial state and begins polling.
func (w *Watcher) Start(ctx context.Context) {
	state := w.scan()
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()

	go w.watchLoop(ctx)
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Subscribe returns a channel that receives events.
func (w *Watcher) Subscribe() chan Event {
	ch := make(chan Event, 100)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkChanges()
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) scan() map[string]entry {
	state := make(map[string]entry)
	for _, root := range w.roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == root {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			state[path] = entry{mtime: info.ModTime().UnixNano(), isDir: d.IsDir()}
			return nil
		})
	}
	return state
}

func (w *Watcher) checkChanges() {
	newState := w.scan()
	now := time.Now().Unix()
	var events []Event

	w.mu.Lock()
	for path, e := range newState {
		old, exists := w.state[path]
		switch {
		case !exists:
			events = append(events, Event{Type: EventCreate, Path: path, IsDir: e.isDir, Time: now})
		case old.mtime != e.mtime && !e.isDir:
			events = append(events, Event{Type: EventModify, Path: path, Time: now})
		}
	}
	for path, e := range w.state {
		if _, exists := newState[path]; !exists {
			events = append(events, Event{Type: EventDelete, Path: path, IsDir: e.isDir, Time: now})
		}
	}
	w.state = newState
	w.mu.Unlock()

	if len(events) > 0 {
		w.broadcast(events)
	}
}

func (w *Watcher) broadcast(events []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for ch := range w.subs {
		for _, event := range events {
			select {
			case ch <- event:
			default:
				w.log.Warn("dropping event for slow subscriber",
					logger.String("type", event.Type), logger.String("path", event.Path))
			}
		}
	}
}
