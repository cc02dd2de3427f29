package db_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-ticket-lifecycle/internal/models"
	"ms-ticket-lifecycle/internal/tickets/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	store := &db.DB{Bun: bunDB}
	require.NoError(t, store.CreateTables(context.Background()))
	return store
}

func newTicket(ticketID string) *models.Ticket {
	now := time.Now().UTC()
	return &models.Ticket{
		ID:              uuid.New().String(),
		TicketID:        ticketID,
		TokenName:       "TICKET#" + ticketID,
		PolicyID:        "policy",
		CommitmentHash:  "commitment",
		OwnerCommitment: "owner",
		BuyerPubKey:     "pk1",
		Status:          models.TicketStatusActive,
		Metadata:        map[string]any{"title": "Show", "seat": "A1"},
		TxHash:          "tx",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("t1")))

	ticket, err := store.GetTicketByTicketID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "TICKET#t1", ticket.TokenName)
	assert.Equal(t, models.TicketStatusActive, ticket.Status)
	assert.Equal(t, "Show", ticket.Metadata["title"])
	assert.Empty(t, ticket.BurnTxHash)

	exists, err := store.TicketExists(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.GetTicketByTicketID(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)

	exists, err = store.TicketExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateTicketDuplicate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("t1")))
	err := store.CreateTicket(ctx, newTicket("t1"))
	assert.ErrorIs(t, err, db.ErrConflict)
}

func TestConcurrentCreateTicketSingleWinner(t *testing.T) {
	store := setupTestDB(t)

	var mu sync.Mutex
	var wins, conflicts int
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreateTicket(context.Background(), newTicket("race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, db.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, conflicts)
}

func TestUpdateTicketStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateTicket(ctx, newTicket("t1")))

	require.NoError(t, store.UpdateTicketStatus(ctx, "t1", models.TicketStatusCanceled, "burn-tx"))

	ticket, err := store.GetTicketByTicketID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCanceled, ticket.Status)
	assert.Equal(t, "burn-tx", ticket.BurnTxHash)

	err = store.UpdateTicketStatus(ctx, "missing", models.TicketStatusCanceled, "")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdateTicketOwner(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateTicket(ctx, newTicket("t1")))

	require.NoError(t, store.UpdateTicketOwner(ctx, "t1", "owner-2", models.TicketStatusTransferred))

	ticket, err := store.GetTicketByTicketID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", ticket.OwnerCommitment)
	assert.Equal(t, models.TicketStatusTransferred, ticket.Status)
}

func TestAuditLogs(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, op := range []models.Operation{models.OperationMint, models.OperationRequestResale, models.OperationTransfer} {
		require.NoError(t, store.CreateAuditLog(ctx, &models.AuditLog{
			ID:          uuid.New().String(),
			Operation:   op,
			TicketID:    "t1",
			RequestorID: "user-1",
			Details:     map[string]any{"step": i},
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.CreateAuditLog(ctx, &models.AuditLog{
		ID: uuid.New().String(), Operation: models.OperationMint, TicketID: "t2", RequestorID: "user-1",
		Details: map[string]any{}, Timestamp: base,
	}))

	logs, err := store.ListAuditLogs(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.OperationMint, logs[0].Operation)
	assert.Equal(t, models.OperationTransfer, logs[2].Operation)
	assert.Equal(t, "user-1", logs[1].RequestorID)

	logs, err = store.ListAuditLogs(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestTransferApprovals(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	approval := &models.TransferApproval{
		ID:                 uuid.New().String(),
		TicketID:           "t1",
		TransferCommitment: "transfer",
		NewOwnerCommitment: "owner-2",
		Status:             models.TransferApprovalPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(24 * time.Hour),
	}
	require.NoError(t, store.CreateTransferApproval(ctx, approval))

	dup := *approval
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, store.CreateTransferApproval(ctx, &dup), db.ErrConflict)

	got, err := store.GetTransferApproval(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferApprovalPending, got.Status)
	assert.Equal(t, "owner-2", got.NewOwnerCommitment)

	require.NoError(t, store.UpdateTransferApprovalStatus(ctx, "t1", models.TransferApprovalCompleted))
	got, err = store.GetTransferApproval(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferApprovalCompleted, got.Status)

	_, err = store.GetTransferApproval(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.ErrorIs(t, store.UpdateTransferApprovalStatus(ctx, "missing", models.TransferApprovalCompleted), db.ErrNotFound)
}
