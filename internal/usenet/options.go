package usenet

import "time"

const (
	DefaultMaxDownloadWorkers = 15
	DefaultCloseTimeout       = 30 * time.Second

	minWindowSize = 5
	maxWindowSize = 20
)

// IncompletePolicy decides what happens when a segment ends short for an
// unexplained reason.
type IncompletePolicy int

const (
	// Lenient logs the short segment and keeps streaming.
	Lenient IncompletePolicy = iota
	// Strict fails the read with *IncompleteSegmentError.
	Strict
)

type options struct {
	logger           Logger
	closeTimeout     time.Duration
	readTimeout      time.Duration
	incompletePolicy IncompletePolicy
}

type Option func(*options)

func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCloseTimeout bounds how long Close waits for in-flight fetches.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithReadTimeout bounds a single wait on the current segment. When it fires the
// reader hands back what it has and keeps waiting on the next call.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

func WithIncompletePolicy(p IncompletePolicy) Option {
	return func(o *options) { o.incompletePolicy = p }
}

// WithLegacyCacheSize is kept so older callers compile. The prefetch window is
// bounded by the worker count, so the size is ignored.
func WithLegacyCacheSize(int64) Option {
	return func(*options) {}
}

// WindowSize derives a read-ahead window from a worker count, clamped to [5, 20].
func WindowSize(workers int) int {
	if workers <= 0 {
		workers = DefaultMaxDownloadWorkers
	}
	return min(max(workers, minWindowSize), maxWindowSize)
}
