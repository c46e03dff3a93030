package usenet

import (
	"errors"
	"fmt"

	"github.com/datallboy/nzbstream/internal/domain"
)

// ErrNoMoreSegments is returned by SegmentList once the cursor is past the last segment.
var ErrNoMoreSegments = errors.New("no more segments")

// ErrPrefetchStopped closes segments that were never handed to a fetch worker
// because the download manager stopped early.
var ErrPrefetchStopped = errors.New("prefetch stopped before segment was fetched")

// ArticleNotFoundError reports an article missing from every provider together with
// the number of stream bytes delivered before it.
type ArticleNotFoundError struct {
	SegmentID string
	BytesRead int64
	Err       error
}

func (e *ArticleNotFoundError) Error() string {
	if e.SegmentID == "" {
		return fmt.Sprintf("article not found after %d bytes: %v", e.BytesRead, e.Err)
	}
	return fmt.Sprintf("article %s not found after %d bytes: %v", e.SegmentID, e.BytesRead, e.Err)
}

func (e *ArticleNotFoundError) Unwrap() error { return e.Err }

// SegmentError carries the error a fetch task closed its segment with.
type SegmentError struct {
	SegmentID string
	Err       error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %s: %v", e.SegmentID, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// IncompleteSegmentError is returned under the strict policy when a segment ended
// short without hitting the provider buffer limit.
type IncompleteSegmentError struct {
	SegmentID string
	Expected  int64
	Got       int64
}

func (e *IncompleteSegmentError) Error() string {
	return fmt.Sprintf("segment %s incomplete: got %d of %d bytes", e.SegmentID, e.Got, e.Expected)
}

// IsArticleNotFound reports whether err means an article is missing from all providers.
func IsArticleNotFound(err error) bool {
	return errors.Is(err, domain.ErrArticleNotFound)
}
