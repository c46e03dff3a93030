package usenet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// errReadDeadline is returned by Segment.Read when its own read deadline passes.
// It is the only deadline the Reader treats as transient; a fetch error that
// happens to wrap os.ErrDeadlineExceeded arrives as a *SegmentError instead.
var errReadDeadline = fmt.Errorf("segment read: %w", os.ErrDeadlineExceeded)

// Segment is one article of the logical stream. A single fetch task writes the
// decoded body into it and the Reader drains it in order.
//
// Only bytes [start, end) of the decoded body are kept, which lets the first and
// last segments of a byte range carry a partial window of their article.
type Segment struct {
	ID          string
	Groups      []string
	SegmentSize int64

	mu   sync.Mutex
	cond *sync.Cond
	buf  bytes.Buffer

	start   int64
	end     int64
	written int64 // decoded body offset seen by Write

	bytesRead      int64
	hitBufferLimit bool

	closed   bool
	released bool
	err      error

	deadline time.Time
	timer    *time.Timer
}

// NewSegment creates a segment for article id keeping body bytes [start, end).
// A non positive end means the whole article.
func NewSegment(id string, groups []string, segmentSize, start, end int64) *Segment {
	if end <= 0 || end > segmentSize {
		end = segmentSize
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}

	s := &Segment{
		ID:          id,
		Groups:      groups,
		SegmentSize: segmentSize,
		start:       start,
		end:         end,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write appends the part of p that falls inside the segment window to the conduit.
// Bytes outside the window are accepted and dropped.
func (s *Segment) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.released {
		return 0, io.ErrClosedPipe
	}

	offset := s.written
	s.written += int64(len(p))

	lo := max(s.start-offset, 0)
	hi := min(s.end-offset, int64(len(p)))
	if lo < hi {
		s.buf.Write(p[lo:hi])
		s.cond.Broadcast()
	}

	return len(p), nil
}

// Close marks the write side as finished successfully.
func (s *Segment) Close() error {
	return s.CloseWithError(nil)
}

// CloseWithError terminates the write side. A non nil err is returned by the next
// Read, wrapped in a *SegmentError, once buffered bytes are drained. Deciding
// whether a failure was a cancellation is up to the caller. Only the first close
// has an effect.
func (s *Segment) CloseWithError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.err = err
	s.cond.Broadcast()
	return nil
}

// Read drains the conduit. It blocks until data is available, the writer closed,
// or the read deadline passed. It returns exactly io.EOF once the writer closed
// cleanly and every byte was read, a *SegmentError when the writer closed with an
// error, errReadDeadline when the deadline passed and io.ErrClosedPipe after Release.
func (s *Segment) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.released {
			return 0, io.ErrClosedPipe
		}
		if s.buf.Len() > 0 {
			return s.buf.Read(p)
		}
		if s.closed {
			if s.err != nil {
				return 0, &SegmentError{SegmentID: s.ID, Err: s.err}
			}
			return 0, io.EOF
		}
		if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
			return 0, errReadDeadline
		}
		s.cond.Wait()
	}
}

// SetReadDeadline bounds how long a Read may wait for data. The zero time disables it.
func (s *Segment) SetReadDeadline(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = t
	if t.IsZero() {
		return
	}

	s.timer = time.AfterFunc(time.Until(t), func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

// Release frees the buffered bytes and wakes any blocked reader.
func (s *Segment) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true
	s.closed = true
	s.buf = bytes.Buffer{}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cond.Broadcast()
}

func (s *Segment) AddBytesRead(n int64) {
	s.mu.Lock()
	s.bytesRead += n
	s.mu.Unlock()
}

func (s *Segment) BytesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesRead
}

// Length is the number of bytes this segment is expected to deliver.
func (s *Segment) Length() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end - s.start
}

// AdjustToBytesRead shrinks the expected length to n, trusting the observed body
// over the NZB metadata.
func (s *Segment) AdjustToBytesRead(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < s.end-s.start {
		s.end = s.start + n
	}
}

// MarkBufferLimit records that the provider cut the body at its buffer limit.
func (s *Segment) MarkBufferLimit() {
	s.mu.Lock()
	s.hitBufferLimit = true
	s.mu.Unlock()
}

func (s *Segment) HitNNTPBufferLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hitBufferLimit
}

func (s *Segment) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesRead == s.end-s.start
}

// IsIncomplete reports a closed segment that delivered fewer bytes than expected
// for a reason other than the provider buffer limit.
func (s *Segment) IsIncomplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && s.bytesRead < s.end-s.start && !s.hitBufferLimit
}
