package memcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
)

// Cache is the in-process fallback used when no Redis address is configured.
type Cache struct {
	cache *gocache.Cache
}

func New(defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &Cache{cache: gocache.New(defaultTTL, 2*defaultTTL)}
}

var _ ports.Cache = (*Cache)(nil)

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if v, found := c.cache.Get(key); found {
		data, _ := v.([]byte)
		return data, true, nil
	}
	return nil, false, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, ttl)
	return nil
}
