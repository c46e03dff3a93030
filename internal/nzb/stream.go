package nzb

import (
	"context"
	"errors"
	"fmt"

	"github.com/datallboy/nzbstream/internal/decoding"
	"github.com/datallboy/nzbstream/internal/usenet"
)

var ErrInvalidRange = errors.New("invalid byte range")

// Layout is the decoded geometry of a posted file, learned from its yEnc headers.
// Every part except the last carries PartSize bytes.
type Layout struct {
	FileSize int64
	PartSize int64
}

// HeaderFetcher reads the yEnc header of a single article.
type HeaderFetcher interface {
	Header(ctx context.Context, id string, groups []string) (decoding.Header, error)
}

// ProbeLayout fetches the first article of f and derives the decoded layout from
// its header.
func ProbeLayout(ctx context.Context, hf HeaderFetcher, f *File) (*Layout, error) {
	if len(f.Segments) == 0 {
		return nil, ErrNoFiles
	}

	h, err := hf.Header(ctx, f.Segments[0].MessageID, f.Groups)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", f.Segments[0].MessageID, err)
	}
	if h.Size <= 0 {
		return nil, fmt.Errorf("probe %s: yenc header has no size", f.Segments[0].MessageID)
	}

	part := h.PartSize()
	if len(f.Segments) == 1 || part <= 0 {
		part = h.Size
	}
	return &Layout{FileSize: h.Size, PartSize: part}, nil
}

// SegmentSizes returns the expected decoded size of every segment. Without a
// layout the sizes declared in the NZB are used.
func (f *File) SegmentSizes(l *Layout) []int64 {
	sizes := make([]int64, len(f.Segments))
	if l == nil || l.PartSize <= 0 {
		for i, s := range f.Segments {
			sizes[i] = s.Bytes
		}
		return sizes
	}

	for i := range sizes {
		sizes[i] = l.PartSize
	}
	if n := len(sizes); n > 0 {
		if last := l.FileSize - int64(n-1)*l.PartSize; last > 0 && last <= l.PartSize {
			sizes[n-1] = last
		}
	}
	return sizes
}

// BuildSegmentList maps the byte range [start, end) of f onto its segments. The
// first and last segment keep only the part of their body inside the range. A
// non positive end means the end of the file.
func BuildSegmentList(f *File, sizes []int64, start, end int64) (*usenet.SegmentList, error) {
	if len(sizes) != len(f.Segments) {
		return nil, fmt.Errorf("got %d sizes for %d segments", len(sizes), len(f.Segments))
	}

	var total int64
	for _, s := range sizes {
		total += s
	}
	if end <= 0 || end > total {
		end = total
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("%w: %d-%d of %d", ErrInvalidRange, start, end, total)
	}
	if start == end {
		// Nothing to deliver, so nothing to fetch.
		return usenet.NewSegmentList(nil, start, end), nil
	}

	var (
		segs   []*usenet.Segment
		offset int64
	)
	for i, seg := range f.Segments {
		size := sizes[i]
		segStart, segEnd := offset, offset+size
		offset = segEnd

		if segEnd <= start || size == 0 {
			continue
		}
		if segStart >= end {
			break
		}

		lo := max(start-segStart, 0)
		hi := min(end-segStart, size)
		segs = append(segs, usenet.NewSegment(seg.MessageID, f.Groups, size, lo, hi))
	}

	return usenet.NewSegmentList(segs, start, end), nil
}

// FileInfo is a listing entry for one file of an NZB.
type FileInfo struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Segments int    `json:"segments"`
}

// FileInfos lists the files of m in document order.
func (m *Model) FileInfos() []FileInfo {
	infos := make([]FileInfo, 0, len(m.Files))
	for i := range m.Files {
		f := &m.Files[i]
		infos = append(infos, FileInfo{
			Index:    i,
			Name:     f.Name(),
			Size:     f.Size(),
			Segments: len(f.Segments),
		})
	}
	return infos
}
