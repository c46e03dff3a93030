package cache

import (
	"context"

	"github.com/datallboy/nzbstream/internal/nzb"
	"github.com/datallboy/nzbstream/internal/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

var _ store.Store = (*ModelCache)(nil)

// ModelCache keeps recently parsed NZB documents in memory so that repeated
// range requests for the same NZB do not re-parse the stored XML.
// Everything other than Model and Delete goes straight to the backend.
type ModelCache struct {
	store.Store

	models *lru.Cache[string, *nzb.Model]
}

func NewModelCache(backend store.Store, size int) *ModelCache {
	if size <= 0 {
		size = 32
	}
	// lru.New only fails on a non positive size.
	models, _ := lru.New[string, *nzb.Model](size)
	return &ModelCache{
		Store:  backend,
		models: models,
	}
}

func (c *ModelCache) Model(ctx context.Context, id string) (*nzb.Model, error) {
	if m, ok := c.models.Get(id); ok {
		return m, nil
	}
	m, err := c.Store.Model(ctx, id)
	if err != nil {
		return nil, err
	}
	c.models.Add(id, m)
	return m, nil
}

func (c *ModelCache) Delete(ctx context.Context, id string) error {
	c.models.Remove(id)
	return c.Store.Delete(ctx, id)
}
