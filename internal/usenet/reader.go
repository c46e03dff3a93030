package usenet

import (
	"context"
	"io"
	"sync"
	"time"
)

type readerState int

const (
	stateIdle readerState = iota
	stateArmed
	stateClosed
)

// Reader streams a SegmentList as one sequential io.ReadCloser. Nothing is fetched
// until the first Read; from then on up to workers segments download ahead of the
// segment being read.
type Reader struct {
	ctx     context.Context
	cancel  context.CancelFunc
	fetcher Fetcher

	segments *SegmentList
	workers  int
	opts     options
	log      Logger

	mu     sync.Mutex
	state  readerState
	closer sync.Once
	wg     sync.WaitGroup

	bytesMu   sync.Mutex
	bytesRead int64
}

var _ io.ReadCloser = (*Reader)(nil)

// NewReader builds a reader over segments. A non positive maxDownloadWorkers falls
// back to DefaultMaxDownloadWorkers.
func NewReader(ctx context.Context, fetcher Fetcher, segments *SegmentList, maxDownloadWorkers int, opts ...Option) *Reader {
	o := options{
		logger:       nopLogger{},
		closeTimeout: DefaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if maxDownloadWorkers <= 0 {
		maxDownloadWorkers = DefaultMaxDownloadWorkers
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Reader{
		ctx:      ctx,
		cancel:   cancel,
		fetcher:  fetcher,
		segments: segments,
		workers:  maxDownloadWorkers,
		opts:     o,
		log:      o.logger,
	}
}

// Read fills p from the segment under the cursor, moving to the next segment when
// one is drained.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !r.arm() {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		seg, err := r.segments.Get()
		if err != nil {
			return r.endOfSegments(n, "", err)
		}

		if r.opts.readTimeout > 0 {
			seg.SetReadDeadline(time.Now().Add(r.opts.readTimeout))
		}
		nn, err := seg.Read(p[n:])
		if nn > 0 {
			n += nn
			seg.AddBytesRead(int64(nn))
			r.addBytesRead(int64(nn))
		}
		if err == nil {
			continue
		}

		switch err {
		case io.EOF:
			if r.ctx.Err() != nil {
				// Segments closed by cancellation are not trustworthy.
				return n, r.interrupted()
			}
			if err := r.finishSegment(seg); err != nil {
				return n, err
			}
			if _, err := r.segments.Next(); err != nil {
				return r.endOfSegments(n, seg.ID, err)
			}
		case errReadDeadline:
			r.log.Warn("Segment %s: no data within %s, waiting again", seg.ID, r.opts.readTimeout)
			if n > 0 {
				return n, nil
			}
		case io.ErrClosedPipe:
			// The list was cleared by Close.
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		default:
			// Everything else is the error the fetch task closed the segment with.
			if IsArticleNotFound(err) {
				return n, &ArticleNotFoundError{SegmentID: seg.ID, BytesRead: r.BytesRead(), Err: err}
			}
			return n, err
		}
	}

	return n, nil
}

// endOfSegments classifies running out of segments.
func (r *Reader) endOfSegments(n int, lastID string, err error) (int, error) {
	if IsArticleNotFound(err) && r.BytesRead() > 0 {
		return n, &ArticleNotFoundError{SegmentID: lastID, BytesRead: r.BytesRead(), Err: err}
	}
	if n > 0 {
		return n, nil
	}
	return 0, io.EOF
}

// finishSegment classifies a drained segment. Short segments are adjusted to the
// observed length so they count as complete.
func (r *Reader) finishSegment(seg *Segment) error {
	got, want := seg.BytesRead(), seg.Length()

	switch {
	case seg.HitNNTPBufferLimit():
		r.log.Warn("Segment %s truncated at provider buffer limit: %d of %d bytes", seg.ID, got, want)
		seg.AdjustToBytesRead(got)
	case seg.IsIncomplete():
		if r.opts.incompletePolicy == Strict {
			r.log.Error("Segment %s incomplete: %d of %d bytes", seg.ID, got, want)
			return &IncompleteSegmentError{SegmentID: seg.ID, Expected: want, Got: got}
		}
		r.log.Error("Segment %s incomplete: %d of %d bytes, continuing", seg.ID, got, want)
		seg.AdjustToBytesRead(got)
	default:
		r.log.Debug("Segment %s complete: %d bytes", seg.ID, got)
	}
	return nil
}

// interrupted is the error for a read cut short by cancellation: io.EOF after
// Close, the context error when the parent context was cancelled.
func (r *Reader) interrupted() error {
	r.mu.Lock()
	closed := r.state == stateClosed
	r.mu.Unlock()

	if closed {
		return io.EOF
	}
	return r.ctx.Err()
}

// arm starts the download manager on the first call. It returns false once closed.
func (r *Reader) arm() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateClosed:
		return false
	case stateIdle:
		r.state = stateArmed
		r.wg.Add(1)
		go r.downloadManager()
	}
	return true
}

// Close cancels all downloads, waits for them up to the close timeout and releases
// every segment. It always returns nil and only the first call has an effect.
func (r *Reader) Close() error {
	r.closer.Do(func() {
		r.mu.Lock()
		armed := r.state == stateArmed
		r.state = stateClosed
		r.mu.Unlock()

		r.cancel()

		if armed {
			done := make(chan struct{})
			go func() {
				r.wg.Wait()
				close(done)
			}()

			timer := time.NewTimer(r.opts.closeTimeout)
			defer timer.Stop()

			select {
			case <-done:
			case <-timer.C:
				r.log.Warn("Timed out after %s waiting for segment downloads, releasing buffers anyway", r.opts.closeTimeout)
			}
		}

		_ = r.segments.Clear()
	})
	return nil
}

// BytesRead is the total number of bytes delivered so far.
func (r *Reader) BytesRead() int64 {
	r.bytesMu.Lock()
	defer r.bytesMu.Unlock()
	return r.bytesRead
}

func (r *Reader) addBytesRead(n int64) {
	r.bytesMu.Lock()
	r.bytesRead += n
	r.bytesMu.Unlock()
}
