package midnight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ticketKeyPrefix   = "midnight:ticket:"
	approvalKeyPrefix = "midnight:approval:"

	// maxTxRetries bounds optimistic retries when a watched key changes
	// under a transaction.
	maxTxRetries = 5
)

var ErrConcurrentUpdate = errors.New("private state changed concurrently, retries exhausted")

// RedisStateStore keeps private state in Redis so several service instances
// share one view. Updates run under WATCH/MULTI on the ticket and approval
// keys.
type RedisStateStore struct {
	Client *redis.Client
	// ApprovalRetention keeps an approval readable this long after it
	// expires, so late transfers can be told their approval expired.
	ApprovalRetention time.Duration
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		Client:            client,
		ApprovalRetention: DefaultApprovalLifetime,
	}
}

func ticketKey(ticketID string) string {
	return ticketKeyPrefix + ticketID
}

func approvalKey(ticketID string) string {
	return approvalKeyPrefix + ticketID
}

func (s *RedisStateStore) Create(ctx context.Context, state TicketState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode ticket state: %w", err)
	}

	ok, err := s.Client.SetNX(ctx, ticketKey(state.TicketID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create ticket state: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStateStore) Get(ctx context.Context, ticketID string) (*Entry, error) {
	return s.load(ctx, s.Client, ticketID)
}

func (s *RedisStateStore) Update(ctx context.Context, ticketID string, fn func(entry *Entry) error) error {
	tk, ak := ticketKey(ticketID), approvalKey(ticketID)

	txf := func(tx *redis.Tx) error {
		entry, err := s.load(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}

		ticketPayload, err := json.Marshal(entry.Ticket)
		if err != nil {
			return fmt.Errorf("failed to encode ticket state: %w", err)
		}
		var approvalPayload []byte
		if entry.Approval != nil {
			if approvalPayload, err = json.Marshal(entry.Approval); err != nil {
				return fmt.Errorf("failed to encode resale approval: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tk, ticketPayload, 0)
			if entry.Approval == nil {
				pipe.Del(ctx, ak)
			} else {
				pipe.Set(ctx, ak, approvalPayload, s.approvalTTL(entry.Approval))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.Client.Watch(ctx, txf, tk, ak)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConcurrentUpdate
}

func (s *RedisStateStore) approvalTTL(approval *ResaleApproval) time.Duration {
	ttl := time.Until(approval.ExpiresAt) + s.ApprovalRetention
	if ttl <= 0 {
		return s.ApprovalRetention
	}
	return ttl
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStateStore) load(ctx context.Context, client getter, ticketID string) (*Entry, error) {
	raw, err := client.Get(ctx, ticketKey(ticketID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get ticket state: %w", err)
	}

	entry := &Entry{}
	if err := json.Unmarshal(raw, &entry.Ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket state: %w", err)
	}

	raw, err = client.Get(ctx, approvalKey(ticketID)).Bytes()
	if err == redis.Nil {
		return entry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get resale approval: %w", err)
	}

	var approval ResaleApproval
	if err := json.Unmarshal(raw, &approval); err != nil {
		return nil, fmt.Errorf("failed to decode resale approval: %w", err)
	}
	entry.Approval = &approval
	return entry, nil
}
