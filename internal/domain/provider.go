package domain

import (
	"context"
	"io"
)

// ProviderConfig is the Domain's contract for what it needs to start a provider.
type ProviderConfig struct {
	ID            string
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           bool
	MaxConnection int
	Priority      int
}

// Provider represents the contract for a Usenet server connection.
type Provider interface {
	ID() string
	Priority() int
	MaxConnection() int
	// Body streams the raw (still yEnc encoded) body of msgID into w.
	Body(ctx context.Context, msgID string, groups []string, w io.Writer) error
	TestConnection() error
	Close() error
}
