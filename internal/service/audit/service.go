package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/common/utils"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/core/watcher"
)

// pageSize is the number of index entries read per query
const pageSize = 100

// ErrRunning is returned when an audit is started while another one runs
var ErrRunning = errors.New("audit already running")

// Lister pages through the media index in path order
type Lister interface {
	ListAfter(ctx context.Context, after string, limit int) ([]types.MediaInfo, error)
}

// Refresher applies a file change to the index and the listing cache
type Refresher interface {
	HandleChange(ctx context.Context, ev watcher.Event) error
}

// Service checks the media index against the file system
type Service struct {
	index   Lister
	refresh Refresher
	log     logger.Logger

	mu            sync.Mutex
	currentReport *types.AuditReport
	wg            sync.WaitGroup
}

// NewService creates a new audit service
func NewService(index Lister, refresh Refresher, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		index:   index,
		refresh: refresh,
		log:     log,
	}
}

// StartAudit starts a new audit in the background. With repair set,
// entries of missing files are dropped and stale entries re-indexed.
func (s *Service) StartAudit(repair bool) (*types.AuditReport, error) {
	s.mu.Lock()
	if s.currentReport != nil && s.currentReport.Status == "running" {
		s.mu.Unlock()
		return nil, ErrRunning
	}

	report := &types.AuditReport{
		ID:        utils.GenerateID(),
		Status:    "running",
		Repair:    repair,
		StartTime: time.Now(),
		Issues:    make([]types.AuditIssue, 0),
	}
	s.currentReport = report
	snapshot := copyReport(report)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAudit(context.Background(), report)
	}()

	return snapshot, nil
}

// GetStatus returns a copy of the current or last report, or nil
func (s *Service) GetStatus() *types.AuditReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentReport == nil {
		return nil
	}
	return copyReport(s.currentReport)
}

// Wait blocks until no audit is running
func (s *Service) Wait() {
	s.wg.Wait()
}

func copyReport(r *types.AuditReport) *types.AuditReport {
	c := *r
	c.Issues = append([]types.AuditIssue(nil), r.Issues...)
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	return &c
}

func (s *Service) runAudit(ctx context.Context, report *types.AuditReport) {
	s.log.Info("audit started", logger.String("audit_id", report.ID), logger.Bool("repair", report.Repair))

	after := ""
	var runErr error
	for {
		entries, err := s.index.ListAfter(ctx, after, pageSize)
		if err != nil {
			runErr = err
			break
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			s.checkEntry(ctx, report, e)
		}
		after = entries[len(entries)-1].Path
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	endTime := time.Now()
	report.EndTime = &endTime
	if runErr != nil {
		report.Status = "failed"
		report.Error = runErr.Error()
		s.log.Error("audit failed", logger.String("audit_id", report.ID), logger.Error(runErr))
		return
	}
	report.Status = "completed"
	report.Summary = fmt.Sprintf("Checked %d entries. Found %d issues, repaired %d.",
		report.TotalEntries, len(report.Issues), report.Repaired)

	s.log.Info("audit completed", logger.String("audit_id", report.ID), logger.String("summary", report.Summary))
}

func (s *Service) checkEntry(ctx context.Context, report *types.AuditReport, e types.MediaInfo) {
	issue, ev := inspect(e)

	s.mu.Lock()
	report.TotalEntries++
	if issue != nil {
		report.Issues = append(report.Issues, *issue)
	}
	s.mu.Unlock()

	if issue == nil || !report.Repair || ev.Type == "" {
		return
	}
	if err := s.refresh.HandleChange(ctx, ev); err != nil {
		s.log.Warn("audit repair failed", logger.String("path", e.Path), logger.Error(err))
		return
	}
	s.mu.Lock()
	report.Repaired++
	s.mu.Unlock()
}

// inspect compares an index entry with the file it describes and returns
// the issue found, if any, with the change event that repairs it
func inspect(e types.MediaInfo) (*types.AuditIssue, watcher.Event) {
	ev := watcher.Event{Path: e.Path, Time: time.Now().Unix()}

	info, err := os.Lstat(e.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		ev.Type = watcher.EventDelete
		return &types.AuditIssue{
			Type:        "missing_file",
			Path:        e.Path,
			Description: "indexed file no longer exists",
		}, ev
	case err != nil:
		ev.Type = watcher.EventDelete
		return &types.AuditIssue{
			Type:        "missing_file",
			Path:        e.Path,
			Description: fmt.Sprintf("indexed file is inaccessible: %v", err),
		}, ev
	case info.IsDir():
		// entries below the directory may be valid, so this is only reported
		return &types.AuditIssue{
			Type:        "stale_entry",
			Path:        e.Path,
			Description: "indexed file is now a directory",
		}, ev
	}

	if info.Size() != e.Size || !info.ModTime().Truncate(time.Second).Equal(e.ModTime.Truncate(time.Second)) {
		ev.Type = watcher.EventModify
		return &types.AuditIssue{
			Type: "stale_entry",
			Path: e.Path,
			Description: fmt.Sprintf("index has size %d modified %s, file has size %d modified %s",
				e.Size, e.ModTime.Format(time.RFC3339), info.Size(), info.ModTime().Format(time.RFC3339)),
		}, ev
	}
	return nil, ev
}
