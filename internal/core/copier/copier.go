// Package copier implements the parallel chunked file copy engine.
//
// A copy is split into up to eight contiguous byte ranges which are written
// concurrently into the destination. All workers of a copy share one
// Controller for cooperative pause and cancel. The destination is either a
// complete, size-verified file or absent when Copy returns.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Policy decides what happens when the destination already exists.
type Policy int

const (
	// PolicyReportIfExists notifies the listener and aborts.
	PolicyReportIfExists Policy = iota
	// PolicySkip aborts silently.
	PolicySkip
	// PolicyRename writes to "name (n).ext" instead.
	PolicyRename
	// PolicyOverwrite writes to a temporary sibling and replaces the
	// destination only after a verified copy.
	PolicyOverwrite
)

// DefaultPolicy is used when the caller does not choose one.
const DefaultPolicy = PolicyRename

var policyNames = map[Policy]string{
	PolicyReportIfExists: "report",
	PolicySkip:           "skip",
	PolicyRename:         "rename",
	PolicyOverwrite:      "overwrite",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "report", "skip", "rename" or "overwrite". The empty
// string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPolicy, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	if s == "report_if_exists" {
		return PolicyReportIfExists, nil
	}
	return DefaultPolicy, fmt.Errorf("unknown exists policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Options tunes the engine. Zero fields fall back to the defaults.
type Options struct {
	BufferSize     int
	ChunkThreshold int64
	MaxThreads     int
	PollInterval   time.Duration
}

// DefaultOptions returns 4 KiB buffers, one thread per 10 MiB up to 8, and
// a one second pause poll.
func DefaultOptions() Options {
	return Options{
		BufferSize:     DefaultBufferSize,
		ChunkThreshold: DefaultChunkThreshold,
		MaxThreads:     DefaultMaxThreads,
		PollInterval:   DefaultPollInterval,
	}
}

// Job is the plan for one file copy. It never leaves the Copier; workers
// only see their Range.
type Job struct {
	Source      string
	Destination string // final path handed back to the caller
	Target      string // path the workers write to
	Size        int64
	Policy      Policy
	Chunks      []Range
	Mode        os.FileMode
}

// openFile creates the destination; tests replace it to simulate errors the
// filesystem will not produce for root.
var openFile = os.OpenFile

// Copier runs chunked copies and reports to a Listener.
type Copier struct {
	opts     Options
	listener Listener
}

// New creates a Copier. A nil listener discards events.
func New(opts Options, listener Listener) *Copier {
	def := DefaultOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = def.ChunkThreshold
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = def.MaxThreads
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &Copier{opts: opts, listener: listener}
}

// Plan resolves the exists policy and partitions the source. It creates
// nothing on disk.
func (c *Copier) Plan(src, dst string, policy Policy) (*Job, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is not a regular file", src)
	}

	job := &Job{
		Source:      src,
		Destination: dst,
		Target:      dst,
		Size:        info.Size(),
		Policy:      policy,
		Chunks:      Partition(info.Size(), c.opts.ChunkThreshold, c.opts.MaxThreads),
		Mode:        info.Mode().Perm(),
	}

	if !pathExists(dst) {
		return job, nil
	}

	switch policy {
	case PolicyReportIfExists:
		return nil, ErrDestinationExists
	case PolicySkip:
		return nil, ErrSkipped
	case PolicyRename:
		job.Destination = UniqueName(dst)
		job.Target = job.Destination
	case PolicyOverwrite:
		if sameFile(src, dst) {
			return nil, fmt.Errorf("source and destination are the same file: %s", dst)
		}
		dir, base := filepath.Split(dst)
		job.Target = filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
	default:
		return nil, fmt.Errorf("unknown exists policy %d", int(policy))
	}
	return job, nil
}

// Copy copies src to dst. ctl may be nil, in which case a private
// controller is used; cancelling ctx cancels ctl. On any error other than
// ErrDestinationExists/ErrSkipped the partially written file is removed and
// an OVERWRITE destination is left untouched.
func (c *Copier) Copy(ctx context.Context, src, dst string, policy Policy, ctl *Controller) (*Result, error) {
	if ctl == nil {
		ctl = NewController()
	}
	start := time.Now()

	job, err := c.Plan(src, dst, policy)
	if err != nil {
		c.report(src, dst, err)
		return nil, err
	}

	stop := context.AfterFunc(ctx, ctl.Cancel)
	defer stop()

	if err := c.createTarget(job); err != nil {
		c.report(src, job.Destination, err)
		return nil, err
	}

	written, err := c.run(ctx, job, ctl)
	if err == nil && ctl.IsCancelled() {
		err = ErrCancelled
	}
	if err == nil {
		err = verify(job, written)
	}
	if err == nil && job.Target != job.Destination {
		if rerr := os.Rename(job.Target, job.Destination); rerr != nil {
			err = fmt.Errorf("replace %s: %w", job.Destination, rerr)
		}
	}

	if err != nil {
		os.Remove(job.Target)
		c.report(src, job.Destination, err)
		return nil, err
	}

	result := Result{
		Source:      src,
		Destination: job.Destination,
		Size:        job.Size,
		Threads:     len(job.Chunks),
		Elapsed:     time.Since(start),
	}
	c.listener.OnDone(result)
	return &result, nil
}

// report sends the single terminal event for a copy that did not finish.
// A skipped copy is silent.
func (c *Copier) report(src, dst string, err error) {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, ErrSkipped):
	case errors.Is(err, ErrDestinationExists):
		c.listener.OnFileExists(dst)
	case errors.Is(err, ErrCancelled):
		c.listener.OnCancelled(src, dst)
	case errors.As(err, &pathErr) && errors.Is(err, fs.ErrPermission):
		c.listener.OnNotPermitted(pathErr.Path, err)
	case errors.Is(err, fs.ErrPermission):
		c.listener.OnNotPermitted(dst, err)
	default:
		c.listener.OnFailed(src, dst, err)
	}
}

// createTarget creates the empty output file. Under PolicyRename a name
// taken between planning and creation is re-resolved.
func (c *Copier) createTarget(job *Job) error {
	if err := os.MkdirAll(filepath.Dir(job.Target), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	for attempt := 0; attempt < 16; attempt++ {
		f, err := openFile(job.Target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, job.Mode|0o200)
		if err == nil {
			return f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create destination: %w", err)
		}
		switch job.Policy {
		case PolicyRename:
			job.Destination = UniqueName(job.Destination)
			job.Target = job.Destination
		case PolicyOverwrite:
			dir, base := filepath.Split(job.Destination)
			job.Target = filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
		case PolicySkip:
			return ErrSkipped
		default:
			return ErrDestinationExists
		}
	}
	return fmt.Errorf("create destination %s: too many name collisions", job.Destination)
}

// run fans the chunks out and waits for every worker to terminate. A worker
// failure cancels the shared controller so the siblings stop early; the
// first real failure wins over the cancellations it caused.
func (c *Copier) run(ctx context.Context, job *Job, ctl *Controller) (int64, error) {
	var (
		g        errgroup.Group
		written  atomic.Int64
		failOnce sync.Once
		failure  error
	)
	listener := chunkListener{Listener: c.listener}

	for _, r := range job.Chunks {
		w := &Worker{
			Source:       job.Source,
			Destination:  job.Target,
			Range:        r,
			TotalSize:    job.Size,
			BufferSize:   c.opts.BufferSize,
			PollInterval: c.opts.PollInterval,
			Listener:     listener,
			Controller:   ctl,
		}
		g.Go(func() error {
			n, err := w.Run(ctx)
			written.Add(n)
			if err != nil && !errors.Is(err, ErrCancelled) {
				failOnce.Do(func() { failure = fmt.Errorf("%s: %w", w.Range, err) })
				ctl.Cancel()
			}
			return err
		})
	}

	waitErr := g.Wait()
	if failure != nil {
		return written.Load(), failure
	}
	return written.Load(), waitErr
}

func verify(job *Job, written int64) error {
	info, err := os.Stat(job.Target)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if info.Size() != job.Size || written != job.Size {
		return fmt.Errorf("%w: source %d bytes, destination %d bytes, written %d",
			ErrSizeMismatch, job.Size, info.Size(), written)
	}
	return nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
