package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type counter struct {
	Value int `json:"value"`
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	c := NewMemoryCache(0)
	t.Cleanup(func() { c.Close() })
	return NewLoader(c, time.Minute, zap.NewNop())
}

func TestLoadCachesResult(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (counter, error) {
		calls++
		return counter{Value: 7}, nil
	}

	v, err := Load(ctx, l, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Value)

	v, err = Load(ctx, l, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Value)
	assert.Equal(t, 1, calls, "second read should be served from cache")

	l.Invalidate(ctx, "k")
	_, err = Load(ctx, l, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "invalidated key should be re-fetched")
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := Load(ctx, l, "k", func(context.Context) (counter, error) {
		return counter{}, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := Load(ctx, l, "k", func(context.Context) (counter, error) {
		return counter{Value: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Value)
}

func TestLoadCollapsesConcurrentMisses(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (counter, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return counter{Value: 3}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Load(ctx, l, "k", fetch)
			assert.NoError(t, err)
			assert.Equal(t, 3, v.Value)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestLoadSkipsFillAfterInvalidate(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()

	// The store changes while the fetch holds an older read.
	v, err := Load(ctx, l, "k", func(context.Context) (counter, error) {
		l.Invalidate(ctx, "k")
		return counter{Value: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Value, "the caller still gets its own read")

	v, err = Load(ctx, l, "k", func(context.Context) (counter, error) {
		return counter{Value: 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Value, "stale read must not have been cached")

	v, err = Load(ctx, l, "k", func(context.Context) (counter, error) {
		t.Fatal("fresh value should be served from cache")
		return counter{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Value)
}

func TestInvalidateOnlyAffectsNamedKeys(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()

	_, err := Load(ctx, l, "other", func(context.Context) (counter, error) {
		return counter{Value: 9}, nil
	})
	require.NoError(t, err)

	_, err = Load(ctx, l, "k", func(context.Context) (counter, error) {
		l.Invalidate(ctx, "unrelated")
		return counter{Value: 4}, nil
	})
	require.NoError(t, err)

	for _, key := range []string{"k", "other"} {
		_, err := Load(ctx, l, key, func(context.Context) (counter, error) {
			t.Fatalf("%s should be cached", key)
			return counter{}, nil
		})
		require.NoError(t, err)
	}
}
