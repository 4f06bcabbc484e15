package transfer

import (
	"sync/atomic"

	"github.com/xuecangming/file-manager/internal/core/copier"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/metrics"
	"github.com/xuecangming/file-manager/internal/service/task"
)

// taskListener turns copier events of one transfer into task progress,
// log lines and metrics
type taskListener struct {
	id    string
	total int64
	tasks *task.Service
	log   logger.Logger

	copied  atomic.Int64
	percent atomic.Int64
}

func newTaskListener(id string, total int64, tasks *task.Service, log logger.Logger) *taskListener {
	return &taskListener{
		id:    id,
		total: total,
		tasks: tasks,
		log:   log.With(logger.String("task_id", id)),
	}
}

// OnProgress is called concurrently by every chunk worker. The task is
// only written when the whole percentage moves.
func (l *taskListener) OnProgress(p copier.Progress) {
	metrics.AddCopyBytes(p.BytesRead)
	done := l.copied.Add(p.BytesRead)
	if l.total <= 0 {
		return
	}

	pct := done * 100 / l.total
	for {
		last := l.percent.Load()
		if pct <= last {
			return
		}
		if l.percent.CompareAndSwap(last, pct) {
			break
		}
	}
	if _, err := l.tasks.UpdateProgress(l.id, done); err != nil {
		l.log.Debug("progress update rejected", logger.Error(err))
	}
}

func (l *taskListener) OnFileExists(destination string) {
	l.log.Info("destination exists", logger.String("destination", destination))
}

func (l *taskListener) OnDone(r copier.Result) {
	l.log.Info("transfer finished",
		logger.String("destination", r.Destination),
		logger.Int64("size", r.Size),
		logger.Int("threads", r.Threads),
		logger.Duration("elapsed", r.Elapsed),
	)
}

func (l *taskListener) OnCancelled(source, destination string) {
	l.log.Info("transfer cancelled", logger.String("source", source), logger.String("destination", destination))
}

func (l *taskListener) OnFailed(source, destination string, err error) {
	l.log.Error("transfer failed",
		logger.String("source", source),
		logger.String("destination", destination),
		logger.Error(err),
	)
}

func (l *taskListener) OnNotPermitted(path string, reason error) {
	l.log.Warn("operation not permitted", logger.String("path", path), logger.Error(reason))
}
