package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

const (
	redisCASMissingKey = "key does not exist"
	redisCASScript     = `
local v = redis.call('get', KEYS[1])
if v == false then
  return redis.error_reply("key does not exist")
end
if v ~= ARGV[1] then
  return 0
end
redis.call('setex', KEYS[1], ARGV[3], ARGV[2])
return 1
`
)

// DefaultRedisPrefix namespaces rate limit keys in a shared Redis.
const DefaultRedisPrefix = "stateless-mcp:ratelimit:"

// RedisStore is a counter store shared between replicas through Redis.
type RedisStore struct {
	client    rueidis.Client
	casScript *rueidis.Lua
	prefix    string
}

// DialRedis connects to the Redis server named by a redis:// URL.
func DialRedis(url string) (rueidis.Client, error) {
	opt, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opt.DisableCache = true

	c, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return c, nil
}

// NewRedisStore creates a store whose keys all carry prefix.
func NewRedisStore(client rueidis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		casScript: rueidis.NewLuaScript(redisCASScript),
		prefix:    prefix,
	}
}

// GetWithTime returns the value of the key if it is in the store
// or -1 if it does not exist. It also returns the current time at
// the redis server to microsecond precision.
func (r *RedisStore) GetWithTime(ctx context.Context, key string) (int64, time.Time, error) {
	key = r.prefix + key

	res, timeErr := r.client.Do(ctx, r.client.B().Time().Build()).AsStrSlice()
	v, valErr := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).AsInt64()

	if timeErr != nil {
		return 0, time.Time{}, timeErr
	}
	now, err := redisTime(res)
	if err != nil {
		return 0, time.Time{}, err
	}

	if valErr != nil && rueidis.IsRedisNil(valErr) {
		return -1, now, nil
	}
	if valErr != nil {
		return 0, now, valErr
	}
	return v, now, nil
}

// SetIfNotExistsWithTTL sets the value of key only if it is not already
// set. The TTL is applied in a second command, not atomically.
func (r *RedisStore) SetIfNotExistsWithTTL(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	key = r.prefix + key

	updated, err := r.client.Do(
		ctx,
		r.client.B().Setnx().Key(key).Value(strconv.FormatInt(value, 10)).Build(),
	).AsInt64()
	if err != nil {
		return false, err
	}

	// EXPIRE 0 deletes the key immediately.
	if ttl < time.Second {
		ttl = time.Second
	}

	err = r.client.Do(ctx, r.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()).Error()
	return updated == 1, err
}

// CompareAndSwapWithTTL atomically swaps old for next and refreshes the TTL.
// A missing key reports false with no error.
func (r *RedisStore) CompareAndSwapWithTTL(ctx context.Context, key string, old, next int64, ttl time.Duration) (bool, error) {
	key = r.prefix + key

	ttlSeconds := int(ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := r.casScript.Exec(
		ctx,
		r.client,
		[]string{key},
		[]string{
			strconv.FormatInt(old, 10),
			strconv.FormatInt(next, 10),
			strconv.Itoa(ttlSeconds),
		},
	).AsInt64()
	if err != nil {
		if strings.Contains(err.Error(), redisCASMissingKey) {
			return false, nil
		}
		return false, err
	}
	return result == 1, nil
}

func redisTime(parts []string) (time.Time, error) {
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("unexpected redis TIME reply: %v", parts)
	}

	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	usecs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, usecs*int64(time.Microsecond)), nil
}
