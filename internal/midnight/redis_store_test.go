package midnight_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ticket-lifecycle/internal/midnight"
	"ms-ticket-lifecycle/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisStateStoreCreateAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := midnight.NewRedisStateStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "t1")
	assert.ErrorIs(t, err, midnight.ErrNotFound)

	state := midnight.TicketState{
		TicketID:        "t1",
		OwnerCommitment: "owner",
		MetadataHash:    "meta",
		Status:          models.TicketStatusActive,
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Create(ctx, state))
	assert.ErrorIs(t, store.Create(ctx, state), midnight.ErrAlreadyExists)

	entry, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner", entry.Ticket.OwnerCommitment)
	assert.True(t, state.CreatedAt.Equal(entry.Ticket.CreatedAt))
	assert.Nil(t, entry.Approval)
}

func TestRedisStateStoreUpdate(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := midnight.NewRedisStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, midnight.TicketState{TicketID: "t1", OwnerCommitment: "owner", Status: models.TicketStatusActive}))

	now := time.Now().UTC()
	err := store.Update(ctx, "t1", func(entry *midnight.Entry) error {
		entry.Approval = &midnight.ResaleApproval{TicketID: "t1", ApprovedAt: now, ExpiresAt: now.Add(time.Hour)}
		return nil
	})
	require.NoError(t, err)

	entry, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, entry.Approval)
	assert.True(t, mr.Exists("midnight:approval:t1"))
	assert.Greater(t, mr.TTL("midnight:approval:t1"), time.Hour)

	boom := errors.New("boom")
	err = store.Update(ctx, "t1", func(entry *midnight.Entry) error {
		entry.Ticket.OwnerCommitment = "changed"
		entry.Approval = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entry, err = store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner", entry.Ticket.OwnerCommitment)
	assert.NotNil(t, entry.Approval)

	err = store.Update(ctx, "t1", func(entry *midnight.Entry) error {
		entry.Approval = nil
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("midnight:approval:t1"))

	err = store.Update(ctx, "missing", func(*midnight.Entry) error { return nil })
	assert.ErrorIs(t, err, midnight.ErrNotFound)
}

func TestContractOverRedisStore(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := midnight.NewContract(midnight.NewRedisStateStore(client), nil, nil)
	ctx := context.Background()

	mint(t, c, "t1")

	_, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	resp, err := c.TransferTicket(ctx, midnight.TransferRequest{TicketID: "t1", NewOwnerCommitment: "owner-2", TransferProof: transferProof("t1")})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TransferCommitment)

	state, err := c.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", state.OwnerCommitment)
	assert.Len(t, state.Transfers, 1)

	_, err = c.TransferTicket(ctx, midnight.TransferRequest{TicketID: "t1", NewOwnerCommitment: "owner-3", TransferProof: transferProof("t1")})
	assert.ErrorIs(t, err, midnight.ErrNotApproved)
}
