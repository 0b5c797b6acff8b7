package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/vault-relayer/common"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisTracker(t *testing.T) {
	_, client := newTestRedis(t)

	tr := NewRedisTracker(client, time.Minute)
	testTracker(t, tr)
	testConcurrentAdmit(t, tr)

	// another instance cannot release an id it does not hold
	other := NewRedisTracker(client, time.Minute)
	id := common.RandBytes32()
	ok, err := tr.Admit(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, other.Release(context.Background(), id))
	in, err := tr.InFlight(context.Background(), id)
	assert.NoError(t, err)
	assert.True(t, in)
	assert.NoError(t, tr.Release(context.Background(), id))
}

func TestRedisTrackerSharedAcrossInstances(t *testing.T) {
	_, client := newTestRedis(t)
	a := NewRedisTracker(client, time.Minute)
	b := NewRedisTracker(client, time.Minute)
	ctx := context.Background()
	id := common.RandBytes32()

	ok, err := a.Admit(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Admit(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, id))
	ok, err = b.Admit(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisTrackerLeaseExpires(t *testing.T) {
	mr, client := newTestRedis(t)

	// a crashed holder never releases
	lease := 20 * time.Minute
	crashed := NewRedisTracker(client, lease)
	next := NewRedisTracker(client, time.Minute)
	ctx := context.Background()
	id := common.RandBytes32()

	ok, err := crashed.Admit(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lease, mr.TTL(key(id)))

	mr.FastForward(lease - time.Second)
	ok, err = next.Admit(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = next.Admit(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, next.Release(ctx, id))
}

func TestDialRedisFailsFast(t *testing.T) {
	start := time.Now()
	_, err := DialRedis(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 6*time.Second)
}
