package usenet

import "sync"

// SegmentList is the ordered sequence of segments materializing the byte range
// [start, end) of a file, with a cursor on the segment being read.
type SegmentList struct {
	mu       sync.Mutex
	segments []*Segment
	cursor   int

	start int64
	end   int64
}

func NewSegmentList(segments []*Segment, start, end int64) *SegmentList {
	return &SegmentList{
		segments: segments,
		start:    start,
		end:      end,
	}
}

// Get returns the segment at the cursor.
func (l *SegmentList) Get() (*Segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current()
}

// Next moves the cursor forward and returns the new current segment. The segment
// being left is released.
func (l *SegmentList) Next() (*Segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor < len(l.segments) {
		l.segments[l.cursor].Release()
		l.cursor++
	}
	return l.current()
}

func (l *SegmentList) current() (*Segment, error) {
	if l.cursor >= len(l.segments) {
		return nil, ErrNoMoreSegments
	}
	return l.segments[l.cursor], nil
}

// Clear releases every segment and empties the list. It is safe to call twice.
func (l *SegmentList) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.segments {
		s.Release()
	}
	l.segments = nil
	l.cursor = 0
	return nil
}

// Segments returns a snapshot of the segments in order.
func (l *SegmentList) Segments() []*Segment {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

func (l *SegmentList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.segments)
}

// Range returns the logical byte range of the file this list covers.
func (l *SegmentList) Range() (start, end int64) {
	return l.start, l.end
}
