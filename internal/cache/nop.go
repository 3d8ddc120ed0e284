package cache

import (
	"context"
	"time"
)

// NopCache never stores anything; every read misses.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, error)                { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, ...string) error                  { return nil }
func (NopCache) Clear(context.Context) error                              { return nil }
func (NopCache) Close() error                                             { return nil }
