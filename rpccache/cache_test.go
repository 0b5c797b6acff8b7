package rpccache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL(t *testing.T) {
	c := New[string, int]("test", 0, 100*time.Millisecond)
	ctx := context.Background()

	var calls int32
	loader := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v, err := c.GetOrLoad(ctx, "sig", loader)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.GetOrLoad(ctx, "sig", loader)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	time.Sleep(150 * time.Millisecond)
	_, ok := c.Get("sig")
	assert.False(t, ok)
	v, err = c.GetOrLoad(ctx, "sig", loader)
	assert.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestErrorsNotCached(t *testing.T) {
	c := New[string, int]("test", 0, time.Minute)

	calls := 0
	loader := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("429 too many requests")
		}
		return 42, nil
	}

	_, err := c.GetOrLoad(context.Background(), "k", loader)
	assert.Error(t, err)
	v, err := c.GetOrLoad(context.Background(), "k", loader)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestConcurrentMissesShareLoad(t *testing.T) {
	c := New[string, int]("test", 0, time.Minute)

	var calls int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "same", loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestSizeBound(t *testing.T) {
	c := New[string, int]("test", 2, time.Minute)
	ctx := context.Background()
	one := func(ctx context.Context) (int, error) { return 1, nil }

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrLoad(ctx, k, one)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCancelledWaiter(t *testing.T) {
	c := New[string, int]("test", 0, time.Minute)
	block := make(chan struct{})
	defer close(block)

	go func() {
		_, _ = c.GetOrLoad(context.Background(), "slow", func(ctx context.Context) (int, error) {
			<-block
			return 1, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrLoad(ctx, "slow", func(ctx context.Context) (int, error) {
		return 2, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
