// Package events fans task, file change and volume events out to live
// subscribers such as websocket clients.
package events

import (
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/watcher"
)

// Kind identifies what an event carries
type Kind string

const (
	KindTask   Kind = "task"
	KindChange Kind = "change"
	KindVolume Kind = "volume"
)

// SubscriberBuffer is the number of events buffered per subscriber
const SubscriberBuffer = 64

// Event is one message on the stream. Exactly one payload is set.
type Event struct {
	Kind   Kind           `json:"kind"`
	Time   time.Time      `json:"time"`
	Task   *types.Task    `json:"task,omitempty"`
	Change *watcher.Event `json:"change,omitempty"`
	Volume *types.Volume  `json:"volume,omitempty"`
}

// Hub delivers published events to every subscriber. A subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped int64
	log     logger.Logger
}

// NewHub creates an empty hub
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		subs: make(map[chan Event]struct{}),
		log:  log,
	}
}

// Subscribe returns a channel receiving every event published from now on
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, SubscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Close ends every subscription. Streams reading from the hub see their
// channel closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Publish delivers ev without blocking
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
			h.log.Warn("event subscriber full, dropping event", logger.String("kind", string(ev.Kind)))
		}
	}
}

// PublishTask publishes a task snapshot
func (h *Hub) PublishTask(t types.Task) {
	h.Publish(Event{Kind: KindTask, Task: &t})
}

// PublishChange publishes a file change
func (h *Hub) PublishChange(e watcher.Event) {
	h.Publish(Event{Kind: KindChange, Change: &e})
}

// PublishVolume publishes a mount state transition
func (h *Hub) PublishVolume(v types.Volume) {
	h.Publish(Event{Kind: KindVolume, Volume: &v})
}
