package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/datallboy/nzbstream/internal/infra/config"
	"github.com/datallboy/nzbstream/internal/nzb"
	"github.com/segmentio/ksuid"
)

var ErrNotFound = errors.New("nzb not found")

// Record is the metadata of an imported NZB document.
type Record struct {
	ID        string    `json:"id"`
	FileHash  string    `json:"file_hash"`
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	Password  string    `json:"-"`
	Size      int64     `json:"size"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps imported NZB documents. Only the documents are persisted, never
// article bytes.
type Store interface {
	// Import parses raw and stores it. Importing the same document twice returns
	// the existing record.
	Import(ctx context.Context, name string, raw []byte) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Model returns the parsed document of an imported NZB.
	Model(ctx context.Context, id string) (*nzb.Model, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newRecord parses raw and builds the record to insert.
func newRecord(name string, raw []byte) (*Record, error) {
	model, err := nzb.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var size int64
	for i := range model.Files {
		size += model.Files[i].Size()
	}

	return &Record{
		ID:        ksuid.New().String(),
		FileHash:  fileHash(raw),
		Name:      name,
		Title:     model.MetaValue("title"),
		Password:  model.MetaValue("password"),
		Size:      size,
		FileCount: len(model.Files),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}, nil
}

func fileHash(raw []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

func parseModel(raw []byte) (*nzb.Model, error) {
	return nzb.NewParser().Parse(bytes.NewReader(raw))
}
