// Package cache holds recently listed media so directory views and
// query-type listings do not hit the filesystem or the index on every
// request.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/xuecangming/file-manager/internal/common/types"
)

const (
	// DefaultCapacity is the number of listings kept before LRU eviction.
	DefaultCapacity = 50
	// DefaultTTL is the age after which a listing is considered stale.
	DefaultTTL = 5 * time.Minute
)

// Rough per-object costs used by the memory estimate.
const (
	entryOverhead = 96
	itemOverhead  = 160
)

// Entry is one cached listing. Entries handed out by the store are copies.
type Entry struct {
	Key       string            `json:"key"`
	Data      []types.MediaInfo `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

func (e Entry) clone() Entry {
	e.Data = cloneMedia(e.Data)
	return e
}

func cloneMedia(in []types.MediaInfo) []types.MediaInfo {
	if in == nil {
		return nil
	}
	out := make([]types.MediaInfo, len(in))
	copy(out, in)
	for i := range out {
		if t := out[i].DateTaken; t != nil {
			taken := *t
			out[i].DateTaken = &taken
		}
	}
	return out
}

// Stats is a snapshot of the store counters.
type Stats struct {
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
	Hits        int64 `json:"hit_count"`
	Misses      int64 `json:"miss_count"`
	Evictions   int64 `json:"eviction_count"`
	MemoryBytes int64 `json:"approximate_memory_bytes"`
}

// Store is a bounded LRU map with read-time TTL expiry.
// It is not safe for concurrent use; Coordinator serializes access.
type Store struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	lru *simplelru.LRU[string, *Entry]

	hits      int64
	misses    int64
	evictions int64
}

// NewStore creates a new Store. Non-positive arguments select the defaults.
func NewStore(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, *Entry](capacity, nil)
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		lru:      lru,
	}
}

// Get returns the entry for key. An expired entry is removed and reported
// as a miss.
func (s *Store) Get(key string) (Entry, bool) {
	entry, ok := s.lru.Get(key)
	if !ok {
		s.misses++
		return Entry{}, false
	}
	if s.now().Sub(entry.CreatedAt) > s.ttl {
		s.lru.Remove(key)
		s.misses++
		return Entry{}, false
	}
	s.hits++
	return entry.clone(), true
}

// Put inserts or replaces the listing for key, evicting the least recently
// used entry when the store is full.
func (s *Store) Put(key string, data []types.MediaInfo) {
	entry := &Entry{Key: key, Data: cloneMedia(data), CreatedAt: s.now()}
	if s.lru.Add(key, entry) {
		s.evictions++
	}
}

// Remove deletes key. Missing keys are ignored.
func (s *Store) Remove(key string) {
	s.lru.Remove(key)
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many were removed.
func (s *Store) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, key := range s.Keys() {
		if strings.HasPrefix(key, prefix) && s.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Clear drops every entry. Counters are kept.
func (s *Store) Clear() {
	s.lru.Purge()
}

// Len returns the number of entries, expired ones included.
func (s *Store) Len() int {
	return s.lru.Len()
}

// Keys returns the keys from least to most recently used.
func (s *Store) Keys() []string {
	return s.lru.Keys()
}

// Stats returns the current counters and an advisory memory estimate.
func (s *Store) Stats() Stats {
	return Stats{
		Size:        s.lru.Len(),
		MaxSize:     s.capacity,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		MemoryBytes: s.estimateMemory(),
	}
}

func (s *Store) estimateMemory() int64 {
	var total int64
	for _, entry := range s.lru.Values() {
		total += entryOverhead + 2*int64(len(entry.Key))
		for i := range entry.Data {
			m := &entry.Data[i]
			total += itemOverhead + 2*int64(len(m.ID)+len(m.URI)+len(m.Path)+
				len(m.DisplayName)+len(m.Bucket)+len(m.MimeType))
		}
	}
	return total
}
