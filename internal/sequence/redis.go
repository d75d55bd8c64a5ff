package sequence

import (
	"context"
	"errors"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

// commitScript raises the stored value and never lowers it.
var commitScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if n > cur then
  redis.call('SET', KEYS[1], ARGV[1])
  return n
end
return cur
`)

// RedisCounter keeps the value under a single Redis key so several hosts
// writing into a shared output directory draw from one sequence.
type RedisCounter struct {
	client *redis.Client
	key    string
}

func NewRedisCounter(redisURL, key string) (*RedisCounter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		c.Close()
		return nil, err
	}
	return &RedisCounter{client: c, key: key}, nil
}

func (r *RedisCounter) Next(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 1, nil
	}
	return n, nil
}

func (r *RedisCounter) Commit(ctx context.Context, n int64) error {
	return commitScript.Run(ctx, r.client, []string{r.key}, n).Err()
}

func (r *RedisCounter) Close() error { return r.client.Close() }
