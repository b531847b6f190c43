package ratelimit

import (
	"log/slog"
	"time"

	"github.com/throttled/throttled/v2"
)

// Options selects the quota and the backing store of a Limiter.
type Options struct {
	Window   time.Duration
	Max      int
	MaxKeys  int    // capacity of the in-process store
	RedisURL string // when set, state is kept in Redis instead
}

// Open builds a Limiter for opts. The returned close func releases the
// Redis connection, if one was opened, and is always non-nil.
func Open(opts Options) (*Limiter, func(), error) {
	var (
		store   throttled.GCRAStoreCtx
		closeFn = func() {}
	)

	if opts.RedisURL != "" {
		client, err := DialRedis(opts.RedisURL)
		if err != nil {
			return nil, closeFn, err
		}
		store = NewRedisStore(client, DefaultRedisPrefix)
		closeFn = client.Close
		slog.Info("rate limit store: redis")
	} else {
		mem, err := NewMemoryStore(opts.MaxKeys)
		if err != nil {
			return nil, closeFn, err
		}
		store = mem
		slog.Debug("rate limit store: memory", "max_keys", opts.MaxKeys)
	}

	l, err := New(store, opts.Window, opts.Max)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return l, closeFn, nil
}
