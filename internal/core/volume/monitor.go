// Package volume tracks the storage volumes files are copied between: their
// mount state and free space.
package volume

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/metrics"
)

// ErrNoVolume is returned for paths outside every configured volume.
var ErrNoVolume = errors.New("path is not on a managed volume")

// Usage is the capacity of the filesystem holding a path.
type Usage struct {
	Total int64
	Free  int64
}

// StatFunc reports the usage of the filesystem holding path.
type StatFunc func(path string) (Usage, error)

// ChangeFunc is called when a volume is mounted or unmounted.
type ChangeFunc func(v types.Volume)

// Monitor keeps the last observed state of every configured volume.
type Monitor struct {
	mu       sync.RWMutex
	volumes  []*types.Volume // longest path first
	handlers []ChangeFunc

	stat     StatFunc
	interval time.Duration
	log      logger.Logger
}

// NewMonitor creates a new Monitor. With no mounts configured the whole
// filesystem is one volume named "root".
func NewMonitor(mounts []types.MountConfig, interval time.Duration, log logger.Logger) *Monitor {
	if len(mounts) == 0 {
		mounts = []types.MountConfig{{Name: "root", Path: "/"}}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	vols := make([]*types.Volume, 0, len(mounts))
	for _, m := range mounts {
		vols = append(vols, &types.Volume{
			Name:      m.Name,
			Path:      filepath.Clean(m.Path),
			Removable: m.Removable,
		})
	}
	sort.SliceStable(vols, func(i, j int) bool {
		return len(vols[i].Path) > len(vols[j].Path)
	})

	return &Monitor{
		volumes:  vols,
		stat:     statFS,
		interval: interval,
		log:      log,
	}
}

// OnChange registers fn for mount and unmount transitions.
func (m *Monitor) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Refresh re-reads every volume and notifies handlers of volumes whose
// mount state changed since the previous refresh.
func (m *Monitor) Refresh() {
	now := time.Now()

	m.mu.Lock()
	var changed []types.Volume
	for _, v := range m.volumes {
		mounted, usage := m.probe(v.Path)
		first := v.CheckedAt.IsZero()
		was := v.Mounted

		v.Mounted = mounted
		v.TotalSpace = usage.Total
		v.FreeSpace = usage.Free
		v.CheckedAt = now
		metrics.SetVolume(v.Name, mounted, usage.Free)

		if !first && was != mounted {
			changed = append(changed, *v)
		}
	}
	handlers := append([]ChangeFunc(nil), m.handlers...)
	m.mu.Unlock()

	for _, v := range changed {
		if v.Mounted {
			m.log.Info("volume mounted", logger.String("volume", v.Name), logger.String("path", v.Path))
		} else {
			m.log.Warn("volume unmounted", logger.String("volume", v.Name), logger.String("path", v.Path))
		}
		for _, fn := range handlers {
			fn(v)
		}
	}
}

func (m *Monitor) probe(path string) (bool, Usage) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false, Usage{}
	}
	usage, err := m.stat(path)
	if err != nil {
		m.log.Debug("statfs failed", logger.String("path", path), logger.Error(err))
		return true, Usage{}
	}
	return true, usage
}

// Resolve returns the volume holding path.
func (m *Monitor) Resolve(path string) (types.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.volumes {
		if utils.IsWithin(v.Path, path) {
			return *v, nil
		}
	}
	return types.Volume{}, fmt.Errorf("%s: %w", path, ErrNoVolume)
}

// HasSpace reports whether the volume holding path has at least n free
// bytes, using a fresh reading. It also returns the bytes available.
func (m *Monitor) HasSpace(path string, n int64) (bool, int64, error) {
	v, err := m.Resolve(path)
	if err != nil {
		return false, 0, err
	}
	usage, err := m.stat(v.Path)
	if err != nil {
		return false, 0, fmt.Errorf("stat volume %s: %w", v.Name, err)
	}
	return usage.Free >= n, usage.Free, nil
}

// List returns the volumes as last observed, sorted by name.
func (m *Monitor) List() []types.Volume {
	m.mu.RLock()
	out := make([]types.Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		out = append(out, *v)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary aggregates the mounted volumes.
func (m *Monitor) Summary() map[string]interface{} {
	var total, free int64
	mounted := 0
	vols := m.List()
	for _, v := range vols {
		if !v.Mounted {
			continue
		}
		mounted++
		total += v.TotalSpace
		free += v.FreeSpace
	}

	summary := map[string]interface{}{
		"total_volumes":   len(vols),
		"mounted_volumes": mounted,
		"total_space":     total,
		"free_space":      free,
		"used_space":      total - free,
	}
	if total > 0 {
		summary["usage_percent"] = float64(total-free) / float64(total) * 100
	}
	return summary
}

// Run refreshes on the configured interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Refresh()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}
