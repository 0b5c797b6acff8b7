package tracker

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TEENet-io/vault-relayer/common"
)

const (
	KeyPrefix = "relayer:inflight:"

	// DefaultLease bounds how long a crashed instance can hold an id. The
	// relayer passes a lease derived from its flow timeouts, never shorter.
	DefaultLease = 15 * time.Minute
)

// Only the instance that admitted an id may release it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisTracker struct {
	client redis.UniversalClient
	owner  string
	lease  time.Duration
}

func NewRedisTracker(client redis.UniversalClient, lease time.Duration) *RedisTracker {
	if lease <= 0 {
		lease = DefaultLease
	}
	owner := common.RandBytes32()
	return &RedisTracker{
		client: client,
		owner:  hex.EncodeToString(owner[:8]),
		lease:  lease,
	}
}

// DialRedis connects and pings, failing fast on a bad address.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func key(id [32]byte) string {
	return KeyPrefix + hex.EncodeToString(id[:])
}

func (t *RedisTracker) Admit(ctx context.Context, id [32]byte) (bool, error) {
	ok, err := t.client.SetNX(ctx, key(id), t.owner, t.lease).Result()
	if err != nil {
		return false, fmt.Errorf("failed to admit request: %w", err)
	}
	return ok, nil
}

func (t *RedisTracker) Release(ctx context.Context, id [32]byte) error {
	if err := releaseScript.Run(ctx, t.client, []string{key(id)}, t.owner).Err(); err != nil {
		return fmt.Errorf("failed to release request: %w", err)
	}
	return nil
}

func (t *RedisTracker) InFlight(ctx context.Context, id [32]byte) (bool, error) {
	n, err := t.client.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
