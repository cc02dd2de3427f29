package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/monitoring"
	"ms-ticket-lifecycle/internal/utils"
)

// Counter counts hits per key inside fixed windows.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter shares windows across service instances.
type RedisCounter struct {
	redis *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{redis: client}
}

// Incr opens the window with SET NX EX and increments in the same MULTI, so
// a counter never exists without its expiry.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// sweepEvery is how many Incr calls pass between sweeps of expired windows.
const sweepEvery = 256

// MemoryCounter keeps windows in process memory.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	calls   int
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.calls++
	if c.calls%sweepEvery == 0 {
		for k, w := range c.windows {
			if !now.Before(w.resetAt) {
				delete(c.windows, k)
			}
		}
	}

	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Len is the number of windows currently held.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

type RateLimiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	logger  *logger.Logger
	metrics *monitoring.Metrics
}

func NewRateLimiter(counter Counter, limit int, window time.Duration, log *logger.Logger, metrics *monitoring.Metrics) *RateLimiter {
	if log == nil {
		log = logger.Discard()
	}
	return &RateLimiter{counter: counter, limit: int64(limit), window: window, logger: log, metrics: metrics}
}

// Middleware limits each caller to limit requests per window. Authenticated
// callers are keyed by id, anonymous ones by client IP. Counter failures let
// the request through.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := "ratelimit:" + callerKey(req)

		count, err := r.counter.Incr(req.Context(), key, r.window)
		if err != nil {
			r.logger.Warn("SECURITY", fmt.Sprintf("Rate limiter unavailable: %v", err))
			next.ServeHTTP(w, req)
			return
		}

		remaining := r.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(r.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > r.limit {
			r.metrics.TrackRateLimited()
			r.logger.LogSecurity("RATE_LIMITED", key)
			w.Header().Set("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			utils.WriteError(w, apperror.New(apperror.CodeRateLimited, "Too many requests, please try again later"))
			return
		}
		next.ServeHTTP(w, req)
	})
}

func callerKey(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
