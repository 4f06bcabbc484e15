package main

import (
	"fmt"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/xuecangming/file-manager/internal/core/copier"
)

// console renders copy progress. A quiet console draws nothing.
type console struct {
	progress *mpb.Progress
}

func newConsole(quiet bool) *console {
	if quiet {
		return &console{}
	}
	return &console{progress: mpb.New(mpb.WithWidth(64))}
}

// track returns a listener that advances a bar for one copy
func (c *console) track(name string, total int64) *barListener {
	if c.progress == nil {
		return &barListener{}
	}
	bar := c.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.Percentage(decor.WCSyncSpace), "done",
			),
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncSpace),
		),
	)
	return &barListener{bar: bar}
}

func (c *console) wait() {
	if c.progress != nil {
		c.progress.Wait()
	}
}

// barListener feeds copier events into a progress bar. Chunk workers call
// OnProgress concurrently; mpb serializes the increments.
type barListener struct {
	copier.NopListener
	bar *mpb.Bar
}

func (l *barListener) OnProgress(p copier.Progress) {
	if l.bar != nil {
		l.bar.IncrInt64(p.BytesRead)
	}
}

// finish completes the bar on success and drops it otherwise
func (l *barListener) finish(ok bool) {
	if l.bar == nil {
		return
	}
	if ok {
		l.bar.SetTotal(-1, true)
		return
	}
	l.bar.Abort(true)
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
