package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/nzb"
	"github.com/datallboy/nzbstream/internal/usenet"
	"github.com/dustin/go-humanize"
)

var ErrFileNotFound = errors.New("file index out of range")

// Plan is one NZB file resolved to its expected decoded segment sizes.
type Plan struct {
	File  *nzb.File
	Name  string
	Sizes []int64
	Total int64
}

type Service struct {
	app *app.Context
}

func NewService(a *app.Context) *Service {
	return &Service{app: a}
}

// Plan resolves file index idx of model. When the fetcher can read yEnc headers
// the decoded layout is probed from the first article, otherwise the sizes
// declared in the NZB are used.
func (s *Service) Plan(ctx context.Context, model *nzb.Model, idx int) (*Plan, error) {
	if idx < 0 || idx >= len(model.Files) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFileNotFound, idx, len(model.Files))
	}
	f := &model.Files[idx]

	var layout *nzb.Layout
	if hf, ok := s.app.NNTP.(nzb.HeaderFetcher); ok {
		l, err := nzb.ProbeLayout(ctx, hf, f)
		switch {
		case err == nil:
			layout = l
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case usenet.IsArticleNotFound(err):
			return nil, err
		default:
			s.app.Logger.Warn("Probe of %s failed, using NZB sizes: %v", f.Name(), err)
		}
	}

	p := &Plan{File: f, Name: f.Name(), Sizes: f.SegmentSizes(layout)}
	for _, size := range p.Sizes {
		p.Total += size
	}
	return p, nil
}

// Open starts a stream over bytes [start, end) of the planned file.
func (s *Service) Open(ctx context.Context, p *Plan, start, end int64) (*Stream, error) {
	if s.app.NNTP == nil {
		return nil, errors.New("no usenet providers configured")
	}
	list, err := nzb.BuildSegmentList(p.File, p.Sizes, start, end)
	if err != nil {
		return nil, err
	}
	start, end = list.Range()

	cfg := s.app.Config.Stream
	opts := []usenet.Option{
		usenet.WithLogger(s.app.Logger),
		usenet.WithCloseTimeout(cfg.CloseTimeout),
		usenet.WithReadTimeout(cfg.ReadTimeout),
		usenet.WithLegacyCacheSize(int64(cfg.MaxCacheSizeMB) << 20),
	}
	if cfg.StrictIncomplete {
		opts = append(opts, usenet.WithIncompletePolicy(usenet.Strict))
	}

	if capacity := s.app.NNTP.TotalCapacity(); capacity > 0 && cfg.MaxDownloadWorkers > capacity {
		s.app.Logger.Warn("max_download_workers (%d) exceeds provider connections (%d); extra workers will wait for a free connection",
			cfg.MaxDownloadWorkers, capacity)
	}

	s.app.Logger.Info("Streaming %s: bytes %d-%d of %s (%d segments, %d workers)",
		p.Name, start, end, humanize.IBytes(uint64(p.Total)), list.Len(), cfg.MaxDownloadWorkers)

	s.app.Metrics.StreamStarted()
	return &Stream{
		Reader: usenet.NewReader(ctx, s.app.NNTP, list, cfg.MaxDownloadWorkers, opts...),
		Name:   p.Name,
		Start:  start,
		End:    end,
		Total:  p.Total,
		svc:    s,
	}, nil
}

// Stream is an open byte range of one file.
type Stream struct {
	*usenet.Reader
	Name              string
	Start, End, Total int64

	svc  *Service
	once sync.Once
}

func (st *Stream) Read(p []byte) (int, error) {
	n, err := st.Reader.Read(p)
	st.svc.app.Metrics.AddStreamed(int64(n))
	return n, err
}

func (st *Stream) Close() error {
	st.once.Do(func() {
		st.svc.app.Metrics.StreamFinished()
		st.svc.app.Logger.Debug("Stream %s closed after %s", st.Name, humanize.IBytes(uint64(st.BytesRead())))
	})
	return st.Reader.Close()
}

// Len is the number of bytes the stream delivers when nothing is missing.
func (st *Stream) Len() int64 {
	return st.End - st.Start
}
