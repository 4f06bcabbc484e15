package copier

import "time"

// Progress is emitted once per read iteration of a chunk worker.
type Progress struct {
	BytesRead   int64
	TotalSize   int64
	Source      string
	Destination string
}

// Result describes a verified, finalized copy.
type Result struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Size        int64         `json:"size"`
	Threads     int           `json:"threads"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Listener receives copy events. Calls are fire-and-forget and may arrive
// concurrently from several workers.
type Listener interface {
	OnProgress(p Progress)
	OnFileExists(destination string)
	OnDone(r Result)
	OnCancelled(source, destination string)
	OnFailed(source, destination string, err error)
	OnNotPermitted(path string, reason error)
}

// NopListener ignores every event. Embed it to implement only a subset.
type NopListener struct{}

func (NopListener) OnProgress(Progress) {}
func (NopListener) OnFileExists(string) {}
func (NopListener) OnDone(Result) {}
func (NopListener) OnCancelled(string, string) {}
func (NopListener) OnFailed(string, string, error) {}
func (NopListener) OnNotPermitted(string, error) {}

// chunkListener forwards worker events to the job listener but keeps the
// job-level cancellation event for the orchestrator, which reports it once.
type chunkListener struct {
	Listener
}

func (chunkListener) OnCancelled(string, string) {}
