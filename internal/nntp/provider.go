package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/nzbstream/internal/domain"
	"github.com/datallboy/nzbstream/internal/infra/config"
)

const (
	dialTimeout = 10 * time.Second
	maxIdle     = 4
)

type conn struct {
	raw net.Conn
	tp  *textproto.Conn
}

func (c *conn) close() error {
	// Send the NNTP QUIT command so the server can release
	// the connection slot immediately.
	_ = c.raw.SetDeadline(time.Now().Add(time.Second))
	_, _ = c.tp.Cmd("QUIT")
	return c.tp.Close()
}

type dialFunc func(ctx context.Context) (net.Conn, error)

type nntpProvider struct {
	conf domain.ProviderConfig
	dial dialFunc

	mu     sync.Mutex
	idle   []*conn
	closed bool
}

func NewNNTPProvider(c config.ServerConfig) domain.Provider {
	p := &nntpProvider{
		conf: domain.ProviderConfig{
			ID:            c.ID,
			Host:          c.Host,
			Port:          c.Port,
			Username:      c.Username,
			Password:      c.Password,
			TLS:           c.TLS,
			MaxConnection: c.MaxConnection,
			Priority:      c.Priority,
		},
	}
	p.dial = p.dialServer
	return p
}

// Interface implimentation: ID
func (p *nntpProvider) ID() string { return p.conf.ID }

// Interface implimentation: Priority
func (p *nntpProvider) Priority() int { return p.conf.Priority }

// Interface implimentation: MaxConnection
func (p *nntpProvider) MaxConnection() int { return p.conf.MaxConnection }

// Body streams the raw body of msgID into w. A 430 answer wraps
// domain.ErrArticleNotFound and keeps the connection for the next article.
func (p *nntpProvider) Body(ctx context.Context, msgID string, _ []string, w io.Writer) (err error) {
	c, err := p.acquire(ctx)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	// Unblock network I/O when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = c.raw.SetDeadline(time.Now())
	})
	reusable := false
	defer func() {
		if stop() && reusable {
			p.release(c)
			return
		}
		_ = c.tp.Close()
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
	}()

	id := strings.Trim(msgID, "<>")
	if _, err = c.tp.Cmd("BODY <%s>", id); err != nil {
		return err
	}

	// Expecting 222 Body follows
	if _, _, err = c.tp.ReadCodeLine(222); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == 430 {
			reusable = true
			return fmt.Errorf("%s on %s: %w", id, p.conf.ID, domain.ErrArticleNotFound)
		}
		return err
	}

	// DotReader handles the NNTP "dot-stuffing" (terminating the stream with .\r\n)
	if _, err = io.Copy(w, c.tp.DotReader()); err != nil {
		return err
	}
	reusable = true
	return nil
}

// TestConnection dials and authenticates once, keeping the connection idle.
func (p *nntpProvider) TestConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	c, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	p.release(c)
	return nil
}

func (p *nntpProvider) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var firstErr error
	for _, c := range idle {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// acquire pops an idle connection or dials a new one.
func (p *nntpProvider) acquire(ctx context.Context) (*conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		_ = c.raw.SetDeadline(time.Time{})
		return c, nil
	}
	p.mu.Unlock()

	return p.connect(ctx)
}

func (p *nntpProvider) release(c *conn) {
	p.mu.Lock()
	if !p.closed && len(p.idle) < maxIdle {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = c.close()
}

// handle connection and auth
func (p *nntpProvider) connect(ctx context.Context) (*conn, error) {
	raw, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	c := &conn{raw: raw, tp: textproto.NewConn(raw)}

	// Usenet servers greet with 200, or 201 when posting is not allowed
	if _, _, err := c.tp.ReadCodeLine(2); err != nil {
		c.tp.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}

	if err := p.authenticate(c.tp); err != nil {
		c.tp.Close()
		return nil, fmt.Errorf("authentication: %w", err)
	}

	_ = raw.SetDeadline(time.Time{})
	return c, nil
}

func (p *nntpProvider) dialServer(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(p.conf.Host, fmt.Sprintf("%d", p.conf.Port))
	d := &net.Dialer{Timeout: dialTimeout}

	if p.conf.TLS {
		td := &tls.Dialer{
			NetDialer: d,
			Config: &tls.Config{
				ServerName: p.conf.Host,
				MinVersion: tls.VersionTLS12,
			},
		}
		return td.DialContext(ctx, "tcp", addr)
	}
	// Fallback for non-SSL ports
	return d.DialContext(ctx, "tcp", addr)
}

func (p *nntpProvider) authenticate(tp *textproto.Conn) error {

	if p.conf.Username == "" {
		return nil
	}

	// AUTHINFO USER
	if _, err := tp.Cmd("AUTHINFO USER %s", p.conf.Username); err != nil {
		return err
	}

	_, _, err := tp.ReadCodeLine(381) // 381: Password required
	if err != nil {
		return err
	}

	// AUTHINFO PASS
	if _, err := tp.Cmd("AUTHINFO PASS %s", p.conf.Password); err != nil {
		return err
	}

	_, _, err = tp.ReadCodeLine(281) // 281: Authentication accepted

	return err
}
