package nntp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/decoding"
	"github.com/datallboy/nzbstream/internal/domain"
	"github.com/datallboy/nzbstream/internal/metrics"
	"github.com/dustin/go-humanize"
)

var FETCH_RETRY_COUNT = 3

type managedProvider struct {
	domain.Provider
	semaphore chan struct{}
}

type Manager struct {
	ctx        *app.Context
	providers  []*managedProvider
	maxBytes   int64
	retryDelay time.Duration
	bufs       sync.Pool
}

// NewManager builds one provider per configured server and validates each of them.
func NewManager(ctx *app.Context) (*Manager, error) {
	var providers []domain.Provider

	for _, cfg := range ctx.Config.Servers {
		p := NewNNTPProvider(cfg)

		ctx.Logger.Info("Validating provider: %s", p.ID())
		if err := p.TestConnection(); err != nil {
			for _, opened := range providers {
				opened.Close()
			}
			return nil, fmt.Errorf("connection test failed for %s: %w", p.ID(), err)
		}
		providers = append(providers, p)
	}

	return NewManagerWithProviders(ctx, providers), nil
}

// NewManagerWithProviders wraps already constructed providers.
func NewManagerWithProviders(ctx *app.Context, providers []domain.Provider) *Manager {
	managed := make([]*managedProvider, 0, len(providers))
	for _, p := range providers {
		slots := p.MaxConnection()
		if slots <= 0 {
			slots = 1
		}
		managed = append(managed, &managedProvider{
			Provider:  p,
			semaphore: make(chan struct{}, slots),
		})
	}

	// Sort providers by priority (lower first)
	sort.SliceStable(managed, func(i, j int) bool {
		return managed[i].Priority() < managed[j].Priority()
	})

	m := &Manager{
		ctx:        ctx,
		providers:  managed,
		retryDelay: 100 * time.Millisecond,
		bufs: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
	if ctx.Config != nil {
		m.maxBytes = ctx.Config.Stream.MaxArticleBytes
	}
	return m
}

// Fetch downloads article id from the first provider that has it and writes the
// decoded body to w. Nothing is written to w unless the whole article was
// retrieved, so failover and retries never duplicate bytes.
func (m *Manager) Fetch(ctx context.Context, id string, w io.Writer, groups []string) error {
	decoded, _, err := m.fetch(ctx, id, groups)
	if err != nil {
		return err
	}
	err = m.deliver(id, decoded.Bytes(), w)
	m.putBuf(decoded)
	return err
}

// Header downloads article id and returns its yEnc header.
func (m *Manager) Header(ctx context.Context, id string, groups []string) (decoding.Header, error) {
	decoded, h, err := m.fetch(ctx, id, groups)
	if err != nil {
		return decoding.Header{}, err
	}
	m.putBuf(decoded)
	return h, nil
}

func (m *Manager) fetch(ctx context.Context, id string, groups []string) (*bytes.Buffer, decoding.Header, error) {
	missing := make(map[string]bool)
	attempts := 0

	for {
		// Fast fail if user already cancelled
		if err := ctx.Err(); err != nil {
			return nil, decoding.Header{}, err
		}

		decoded, h, err := m.fetchOnce(ctx, id, groups, missing)
		if err == nil {
			return decoded, h, nil
		}

		switch {
		case errors.Is(err, domain.ErrArticleNotFound):
			return nil, h, err
		case ctx.Err() != nil:
			// A dial or read timeout also wraps context.DeadlineExceeded; only the
			// caller's context ends the retries.
			return nil, h, ctx.Err()
		case errors.Is(err, domain.ErrProviderBusy):
			// Busy does not count as an attempt
		default:
			attempts++
			if attempts >= FETCH_RETRY_COUNT {
				return nil, h, fmt.Errorf("fetch %s failed after %d attempts: %w", id, attempts, err)
			}
			m.ctx.Logger.Debug("Segment %s: attempt %d failed: %v", id, attempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, h, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

// fetchOnce walks the providers in priority order once.
func (m *Manager) fetchOnce(ctx context.Context, id string, groups []string, missing map[string]bool) (*bytes.Buffer, decoding.Header, error) {
	var lastErr error

	for _, mp := range m.providers {
		// Skip if this provider already reported 430 for this article
		if missing[mp.ID()] {
			continue
		}

		// If we already have some 430s for this segment, log that we are trying a failover
		if len(missing) > 0 {
			m.ctx.Logger.Debug("[Failover] Segment %s missing on %d providers, trying %s (Priority %d)",
				id, len(missing), mp.ID(), mp.Priority())
		}

		select {
		case mp.semaphore <- struct{}{}:
		default:
			// Provider is at MaxConnections, skip for now
			continue
		}

		m.ctx.Logger.Debug("Segment %s: Attempting fetch from %s", id, mp.ID())
		decoded, h, err := m.tryFetch(ctx, mp, id, groups)
		<-mp.semaphore

		if err == nil {
			return decoded, h, nil
		}

		if errors.Is(err, domain.ErrArticleNotFound) {
			m.ctx.Logger.Debug("Provider %s: 430 Missing, marking as missing for segment %s...", mp.ID(), id)
			missing[mp.ID()] = true
			continue
		}
		if ctx.Err() != nil {
			return nil, decoding.Header{}, err
		}

		// If it's a network/auth error, keep looking but save error
		m.ctx.Logger.Debug("Failover: %s error: %v", mp.ID(), err)
		lastErr = err
	}

	// If all providers are confirmed missing
	if len(missing) == len(m.providers) {
		return nil, decoding.Header{}, fmt.Errorf("%s: %w", id, domain.ErrArticleNotFound)
	}

	if lastErr != nil {
		return nil, decoding.Header{}, lastErr
	}

	// Some providers were busy, so the caller waits and tries again
	return nil, decoding.Header{}, domain.ErrProviderBusy
}

// tryFetch downloads and decodes the article from a single provider.
func (m *Manager) tryFetch(ctx context.Context, mp *managedProvider, id string, groups []string) (*bytes.Buffer, decoding.Header, error) {
	start := time.Now()
	raw := m.getBuf()
	defer m.putBuf(raw)

	if err := mp.Body(ctx, id, groups, raw); err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, domain.ErrArticleNotFound) {
			outcome = metrics.OutcomeNotFound
		}
		m.ctx.Metrics.RecordFetch(mp.ID(), outcome, time.Since(start), 0)
		return nil, decoding.Header{}, err
	}

	decoded := m.getBuf()
	h, n, err := decoding.Decode(raw, decoded)
	switch {
	case err == nil:
	case errors.Is(err, decoding.ErrChecksum):
		// The bytes are still the best copy we have.
		m.ctx.Logger.Warn("Segment %s from %s: %v", id, mp.ID(), err)
	default:
		m.putBuf(decoded)
		m.ctx.Metrics.RecordFetch(mp.ID(), metrics.OutcomeError, time.Since(start), 0)
		return nil, h, fmt.Errorf("decode %s from %s: %w", id, mp.ID(), err)
	}

	m.ctx.Metrics.RecordFetch(mp.ID(), metrics.OutcomeOK, time.Since(start), int(n))
	return decoded, h, nil
}

// deliver writes the decoded body to w, capped at the configured article size.
func (m *Manager) deliver(id string, body []byte, w io.Writer) error {
	if m.maxBytes > 0 && int64(len(body)) > m.maxBytes {
		if _, err := w.Write(body[:m.maxBytes]); err != nil {
			return err
		}
		m.ctx.Logger.Debug("Segment %s: body of %s cut at %s",
			id, humanize.IBytes(uint64(len(body))), humanize.IBytes(uint64(m.maxBytes)))
		return fmt.Errorf("%s: %d of %d bytes: %w", id, m.maxBytes, len(body), domain.ErrBufferLimit)
	}

	_, err := w.Write(body)
	return err
}

func (m *Manager) getBuf() *bytes.Buffer {
	b := m.bufs.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func (m *Manager) putBuf(b *bytes.Buffer) {
	m.bufs.Put(b)
}

// TotalCapacity returns the maximum number of concurrent connections
// allowed across all configured providers.
func (m *Manager) TotalCapacity() int {
	total := 0
	for _, mp := range m.providers {
		total += cap(mp.semaphore)
	}
	return total
}

// Close closes every provider's idle connections.
func (m *Manager) Close() error {
	var firstErr error
	for _, mp := range m.providers {
		if err := mp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
