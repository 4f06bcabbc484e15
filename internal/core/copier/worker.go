package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	// ErrCancelled is returned when the controller (or context) stopped the copy.
	ErrCancelled = errors.New("copy cancelled")
	// ErrDestinationExists is returned under PolicyReportIfExists.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrSkipped is returned under PolicySkip when the destination exists.
	ErrSkipped = errors.New("destination exists, copy skipped")
	// ErrSizeMismatch is returned when the finalized file length differs
	// from the source length.
	ErrSizeMismatch = errors.New("copied size does not match source size")
)

// Worker copies one byte range of Source into the same range of Destination.
type Worker struct {
	Source      string
	Destination string
	Range       Range
	TotalSize   int64

	BufferSize   int
	PollInterval time.Duration
	Listener     Listener
	Controller   *Controller
}

// Run streams the range and returns the number of bytes written. Both file
// handles are closed on every return path. A stop requested through the
// controller or ctx yields ErrCancelled.
func (w *Worker) Run(ctx context.Context) (written int64, err error) {
	listener := w.Listener
	if listener == nil {
		listener = NopListener{}
	}
	ctl := w.Controller
	if ctl == nil {
		ctl = NewController()
	}
	bufSize := w.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	defer func() {
		if errors.Is(err, ErrCancelled) {
			listener.OnCancelled(w.Source, w.Destination)
		}
	}()

	remaining := w.Range.Len()
	if remaining <= 0 {
		return 0, nil
	}

	src, err := os.Open(w.Source)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(w.Destination, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open destination: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close destination: %w", cerr)
		}
	}()

	if _, err := src.Seek(w.Range.Start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek source: %w", err)
	}
	if _, err := dst.Seek(w.Range.Start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek destination: %w", err)
	}

	buf := make([]byte, bufSize)
	for remaining > 0 {
		if ctl.IsCancelled() || ctx.Err() != nil {
			return written, ErrCancelled
		}
		if ctl.IsPaused() && !ctl.waitWhilePaused(ctx, w.PollInterval) {
			return written, ErrCancelled
		}

		want := int64(len(buf))
		if want > remaining {
			want = remaining
		}
		n, readErr := src.Read(buf[:want])
		if n > 0 {
			if ctl.IsCancelled() {
				return written, ErrCancelled
			}
			// Never write past the assigned range.
			toWrite := min(int64(n), remaining)
			wn, writeErr := dst.Write(buf[:toWrite])
			written += int64(wn)
			remaining -= int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("write %s at %d: %w", w.Destination, w.Range.Start+written, writeErr)
			}
			if int64(wn) != toWrite {
				return written, io.ErrShortWrite
			}
			listener.OnProgress(Progress{
				BytesRead:   int64(n),
				TotalSize:   w.TotalSize,
				Source:      w.Source,
				Destination: w.Destination,
			})
		}
		if readErr != nil {
			if readErr == io.EOF {
				if remaining > 0 {
					return written, fmt.Errorf("read %s: %w", w.Source, io.ErrUnexpectedEOF)
				}
				break
			}
			return written, fmt.Errorf("read %s: %w", w.Source, readErr)
		}
	}

	return written, nil
}
