package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Memory is an in-process cache. Entries share one life window, so the
// ttl passed to Set is ignored.
type Memory struct {
	c *bigcache.BigCache
}

var _ Cache = (*Memory)(nil)

// NewMemory creates a cache whose entries expire after lifeWindow.
func NewMemory(lifeWindow time.Duration) (*Memory, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Shards = 64
	cfg.CleanWindow = lifeWindow
	cfg.MaxEntrySize = 16 << 10
	cfg.HardMaxCacheSize = 256
	cfg.Verbose = false

	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := m.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	return m.c.Set(key, value)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if err := m.c.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return m.c.Close() }
