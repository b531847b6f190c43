// Package ratelimit caps requests per client in fixed windows.
// Counters live in a bounded in-process store or, when configured, in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/throttled/throttled/v2"
)

// RejectionMessage is the body of a 429 response.
const RejectionMessage = "Too many requests, please try again later."

// Standard rate limit response headers.
const (
	HeaderPolicy     = "RateLimit-Policy"
	HeaderLimit      = "RateLimit-Limit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderReset      = "RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// maxCASAttempts bounds the retries of one counter update under contention.
const maxCASAttempts = 10

// ErrContended is returned when a counter could not be updated within
// maxCASAttempts.
var ErrContended = errors.New("rate limit counter contended")

// Decision is the outcome of one rate limit check.
type Decision struct {
	Limited    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration // time left in the current window
	RetryAfter time.Duration // zero unless Limited
}

// Limiter admits up to limit requests per key in each fixed window.
// Windows are aligned to multiples of the window length.
type Limiter struct {
	store  throttled.GCRAStoreCtx
	limit  int
	window time.Duration

	// now seeds the window guess; the store's clock is authoritative.
	now func() time.Time
}

// New creates a Limiter counting in store.
func New(store throttled.GCRAStoreCtx, window time.Duration, limit int) (*Limiter, error) {
	if limit < 1 {
		return nil, fmt.Errorf("rate limit max must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}

	return &Limiter{store: store, limit: limit, window: window, now: time.Now}, nil
}

// Allow counts one request for key in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	guess := l.now()

	for range maxCASAttempts {
		start := guess.Truncate(l.window)
		bucket := l.bucketKey(key, start)

		count, now, err := l.store.GetWithTime(ctx, bucket)
		if err != nil {
			return Decision{}, fmt.Errorf("checking rate limit: %w", err)
		}
		if !now.Truncate(l.window).Equal(start) {
			guess = now
			continue
		}

		resetAfter := start.Add(l.window).Sub(now)
		// Bucket keys never repeat, so a ttl past the window end is harmless
		// and covers stores with second granularity.
		ttl := resetAfter + time.Second

		if count >= int64(l.limit) {
			return Decision{
				Limited:    true,
				Limit:      l.limit,
				ResetAfter: resetAfter,
				RetryAfter: resetAfter,
			}, nil
		}

		var stored bool
		if count < 0 {
			stored, err = l.store.SetIfNotExistsWithTTL(ctx, bucket, 1, ttl)
			count = 0
		} else {
			stored, err = l.store.CompareAndSwapWithTTL(ctx, bucket, count, count+1, ttl)
		}
		if err != nil {
			return Decision{}, fmt.Errorf("updating rate limit: %w", err)
		}
		if !stored {
			guess = now
			continue
		}

		return Decision{
			Limit:      l.limit,
			Remaining:  l.limit - int(count) - 1,
			ResetAfter: resetAfter,
		}, nil
	}

	return Decision{}, ErrContended
}

func (l *Limiter) bucketKey(key string, start time.Time) string {
	return key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// Middleware rejects requests over quota with 429. Store failures are
// logged and the request is let through.
func (l *Limiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	policy := fmt.Sprintf("%d;w=%d", l.limit, int(l.window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			d, err := l.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limit check failed, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderPolicy, policy)
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderReset, strconv.Itoa(ceilSeconds(d.ResetAfter)))

			if d.Limited {
				h.Set(HeaderRetryAfter, strconv.Itoa(max(ceilSeconds(d.RetryAfter), 1)))
				slog.Debug("rate limit exceeded", "key", key, "retry_after", d.RetryAfter)
				h.Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, RejectionMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the peer address of the connection.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
