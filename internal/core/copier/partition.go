package copier

import "fmt"

const (
	// DefaultBufferSize is the per-iteration read size of a chunk worker.
	DefaultBufferSize = 4096
	// DefaultChunkThreshold is the number of bytes each additional thread
	// is worth.
	DefaultChunkThreshold int64 = 10 * 1024 * 1024
	// DefaultMaxThreads caps the number of chunks of one file.
	DefaultMaxThreads = 8
)

// Range is an inclusive byte range [Start, End] assigned to one worker.
// An empty file is described by the single range {0, -1}.
type Range struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("chunk %d [%d-%d]", r.Index, r.Start, r.End)
}

// ThreadCount returns clamp(size/threshold, 1, maxThreads).
func ThreadCount(size, threshold int64, maxThreads int) int {
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	n := size / threshold
	if n < 1 {
		return 1
	}
	if n > int64(maxThreads) {
		return maxThreads
	}
	return int(n)
}

// Partition splits size bytes into contiguous, non-overlapping ranges sorted
// by offset. The last range absorbs the remainder of the integer division.
func Partition(size, threshold int64, maxThreads int) []Range {
	if size <= 0 {
		return []Range{{Index: 0, Start: 0, End: -1}}
	}

	n := ThreadCount(size, threshold, maxThreads)
	chunkSize := size / int64(n)

	ranges := make([]Range, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == n-1 {
			end = size - 1
		}
		ranges[i] = Range{Index: i, Start: start, End: end}
	}
	return ranges
}
