package locking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds how long a crashed holder can keep a ticket locked.
const DefaultTTL = 30 * time.Second

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock held by another operation")

// Locker serializes state-changing operations on a single ticket.
type Locker interface {
	Acquire(ctx context.Context, ticketID, owner string) error
	Release(ctx context.Context, ticketID, owner string) error
}

func lockKey(ticketID string) string {
	return "ticket_lock:" + ticketID
}

// RedisLocker shares locks between replicas. Keys expire after TTL.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{Client: client, TTL: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, ticketID, owner string) error {
	ok, err := l.Client.SetNX(ctx, lockKey(ticketID), owner, l.TTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// releaseScript deletes the key only while owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Release(ctx context.Context, ticketID, owner string) error {
	err := releaseScript.Run(ctx, l.Client, []string{lockKey(ticketID)}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// MemoryLocker is the single-process Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{owners: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, ticketID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[ticketID]; held {
		return ErrHeld
	}
	l.owners[ticketID] = owner
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, ticketID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[ticketID] == owner {
		delete(l.owners, ticketID)
	}
	return nil
}
