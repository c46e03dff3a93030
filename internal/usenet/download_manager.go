package usenet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/datallboy/nzbstream/internal/domain"
	"github.com/sourcegraph/conc/pool"
)

// downloadManager submits every segment, in order, to a pool capped at the worker
// count. The cap is the read-ahead window: completion order is free, but the
// reader only drains the segment under its cursor.
func (r *Reader) downloadManager() {
	defer r.wg.Done()

	segments := r.segments.Segments()
	p := pool.New().
		WithMaxGoroutines(r.workers).
		WithErrors().
		WithFirstError().
		WithContext(r.ctx)

	var failed atomic.Bool
	submitted := 0
	for i, seg := range segments {
		if r.ctx.Err() != nil || failed.Load() {
			break
		}
		p.Go(func(ctx context.Context) error {
			err := r.fetchSegment(ctx, i, seg)
			if err != nil {
				failed.Store(true)
			}
			return err
		})
		submitted++
	}

	err := p.Wait()

	var stopErr error
	if err != nil {
		r.log.Error("Download manager stopped after %d/%d segments: %v", submitted, len(segments), err)
		stopErr = fmt.Errorf("%w: %v", ErrPrefetchStopped, err)
	} else if r.ctx.Err() == nil && submitted < len(segments) {
		stopErr = ErrPrefetchStopped
	}

	// Nobody will ever write these, so do not let a reader wait on them.
	for _, seg := range segments[submitted:] {
		seg.CloseWithError(stopErr)
	}
}

// fetchSegment runs one fetch task and always closes the segment it claimed.
func (r *Reader) fetchSegment(ctx context.Context, idx int, seg *Segment) error {
	r.log.Debug("Segment %d (%s): fetch started", idx, seg.ID)

	err := r.fetcher.Fetch(ctx, seg.ID, seg, seg.Groups)
	switch {
	case err == nil:
		seg.Close()
		r.log.Debug("Segment %d (%s): fetch finished", idx, seg.ID)
		return nil
	case errors.Is(err, domain.ErrBufferLimit):
		seg.MarkBufferLimit()
		seg.Close()
		return nil
	case ctx.Err() != nil:
		// Only the reader's own context decides what counts as cancellation. A
		// fetch error wrapping context.DeadlineExceeded (a dial timeout) is a failure.
		seg.Close()
		return nil
	default:
		seg.CloseWithError(err)
		return fmt.Errorf("segment %d (%s): %w", idx, seg.ID, err)
	}
}
