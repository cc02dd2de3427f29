package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-ticket-lifecycle/internal/logger"
)

const identityKeyPrefix = "auth:identity:"

// DefaultIdentityTTL bounds how long a verified token is trusted without
// re-verification. Entries never outlive the token's own expiry.
const DefaultIdentityTTL = 5 * time.Minute

// CachedIdentity represents a verified identity with its expiry time
type CachedIdentity struct {
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid checks if the cached identity is still usable at now.
func (c *CachedIdentity) IsValid(now time.Time) bool {
	if c == nil || c.Identity.ID == "" {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// CachingVerifier remembers verified tokens in Redis so repeated requests
// skip provider round trips. Keys are token digests, never raw tokens.
type CachingVerifier struct {
	Next   Verifier
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
	Now    func() time.Time
}

func NewCachingVerifier(next Verifier, client *redis.Client, log *logger.Logger) *CachingVerifier {
	if log == nil {
		log = logger.Discard()
	}
	return &CachingVerifier{Next: next, Client: client, TTL: DefaultIdentityTTL, Logger: log, Now: time.Now}
}

func (c *CachingVerifier) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func tokenKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return identityKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachingVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	key := tokenKey(rawToken)

	if cached, err := c.get(ctx, key); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Identity cache read failed: %v", err))
	} else if cached.IsValid(c.now()) {
		id := cached.Identity
		id.ExpiresAt = cached.ExpiresAt
		return &id, nil
	}

	id, err := c.Next.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, key, id); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Identity cache write failed: %v", err))
	}
	return id, nil
}

func (c *CachingVerifier) get(ctx context.Context, key string) (*CachedIdentity, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity from Redis: %w", err)
	}

	var cached CachedIdentity
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached identity: %w", err)
	}
	return &cached, nil
}

// set caches id until min(token expiry, now+TTL). Tokens at or past their
// expiry are not cached.
func (c *CachingVerifier) set(ctx context.Context, key string, id *Identity) error {
	now := c.now()
	expiresAt := now.Add(c.TTL)
	if !id.ExpiresAt.IsZero() && id.ExpiresAt.Before(expiresAt) {
		expiresAt = id.ExpiresAt
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(CachedIdentity{Identity: *id, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := c.Client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store identity in Redis: %w", err)
	}
	return nil
}
