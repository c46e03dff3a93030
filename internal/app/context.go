package app

import (
	"context"
	"io"

	"github.com/datallboy/nzbstream/internal/infra/config"
	"github.com/datallboy/nzbstream/internal/infra/logger"
	"github.com/datallboy/nzbstream/internal/metrics"
	"github.com/datallboy/nzbstream/internal/store"
)

// Fetcher lets services pull article bodies without importing the nntp package.
type Fetcher interface {
	Fetch(ctx context.Context, id string, w io.Writer, groups []string) error
	TotalCapacity() int
	Close() error
}

// Context holds the core environment and shared resources for nzbstream.
type Context struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	NNTP  Fetcher
	Store store.Store
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
	}
}

// Close releases the fetcher and the store when they were set.
func (c *Context) Close() error {
	var firstErr error
	if c.NNTP != nil {
		if err := c.NNTP.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
