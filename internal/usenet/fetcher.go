package usenet

import (
	"context"
	"io"
)

// Fetcher retrieves the decoded body of one article into w. It must honour ctx,
// return an error wrapping domain.ErrArticleNotFound when no provider has the
// article, and an error wrapping domain.ErrBufferLimit when the body was cut short
// at the provider buffer limit after writing the bytes it got.
type Fetcher interface {
	Fetch(ctx context.Context, id string, w io.Writer, groups []string) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string, w io.Writer, groups []string) error

func (f FetcherFunc) Fetch(ctx context.Context, id string, w io.Writer, groups []string) error {
	return f(ctx, id, w, groups)
}

// Logger is the log sink used by the reader. *logger.Logger satisfies it.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
