package midnight_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ticket-lifecycle/internal/commitment"
	"ms-ticket-lifecycle/internal/midnight"
	"ms-ticket-lifecycle/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newContract(t *testing.T) (*midnight.Contract, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := midnight.NewContract(midnight.NewMemoryStateStore(), nil, nil)
	c.Now = clk.Now
	return c, clk
}

func ownershipProof(ticketID string) models.Proof {
	return models.Proof{
		Type:      models.ProofTypeOwnership,
		TicketID:  ticketID,
		Signature: "buyer-sig",
		Timestamp: 1700000000000,
	}
}

func transferProof(ticketID string) models.Proof {
	return models.Proof{
		Type:               models.ProofTypeTransfer,
		TicketID:           ticketID,
		NewOwnerCommitment: "next-owner",
		Signature:          "buyer-sig",
		Timestamp:          1700000000000,
	}
}

func mint(t *testing.T, c *midnight.Contract, ticketID string) *midnight.MintResponse {
	t.Helper()
	resp, err := c.MintTicket(context.Background(), midnight.MintRequest{
		TicketID:        ticketID,
		OwnerCommitment: "owner-" + ticketID,
		MetadataHash:    "meta-" + ticketID,
		OrganizerSig:    "organizer-sig",
	})
	require.NoError(t, err)
	return resp
}

func TestMintTicket(t *testing.T) {
	c, _ := newContract(t)
	ctx := context.Background()

	resp := mint(t, c, "t1")
	assert.Equal(t, commitment.Hash("t1"+"owner-t1"+"meta-t1"), resp.CommitmentHash)
	assert.Len(t, resp.CommitmentHash, 64)

	state, err := c.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusActive, state.Status)
	assert.Equal(t, "owner-t1", state.OwnerCommitment)

	_, err = c.MintTicket(ctx, midnight.MintRequest{
		TicketID: "t1", OwnerCommitment: "x", MetadataHash: "y", OrganizerSig: "sig",
	})
	assert.ErrorIs(t, err, midnight.ErrAlreadyExists)
}

func TestMintTicketRejectsBadSignature(t *testing.T) {
	c, _ := newContract(t)
	ctx := context.Background()

	_, err := c.MintTicket(ctx, midnight.MintRequest{TicketID: "t1", OwnerCommitment: "o", MetadataHash: "m"})
	assert.ErrorIs(t, err, midnight.ErrInvalidSignature)

	c.VerifySignature = func(sig, message string) bool {
		return sig == "good" && message == midnight.MintMessage("t1")
	}
	_, err = c.MintTicket(ctx, midnight.MintRequest{TicketID: "t1", OwnerCommitment: "o", MetadataHash: "m", OrganizerSig: "bad"})
	assert.ErrorIs(t, err, midnight.ErrInvalidSignature)

	_, err = c.MintTicket(ctx, midnight.MintRequest{TicketID: "t1", OwnerCommitment: "o", MetadataHash: "m", OrganizerSig: "good"})
	assert.NoError(t, err)
}

func TestConcurrentMintSingleWinner(t *testing.T) {
	c, _ := newContract(t)

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.MintTicket(context.Background(), midnight.MintRequest{
				TicketID: "race", OwnerCommitment: "o", MetadataHash: "m", OrganizerSig: "sig",
			})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, midnight.ErrAlreadyExists):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 7, conflicts)
}

func TestRequestResale(t *testing.T) {
	c, clk := newContract(t)
	ctx := context.Background()

	_, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "missing", BuyerProof: ownershipProof("missing")})
	assert.ErrorIs(t, err, midnight.ErrNotFound)

	mint(t, c, "t1")

	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: models.Proof{Type: models.ProofTypeOwnership, TicketID: "t1"}})
	assert.ErrorIs(t, err, midnight.ErrInvalidProof)

	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("other")})
	assert.ErrorIs(t, err, midnight.ErrInvalidProof)

	approved, err := c.IsApprovedForResale(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, approved)

	resp, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)
	assert.True(t, resp.Approved)

	approval, err := c.GetResaleApproval(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, clk.Now().Add(24*time.Hour), approval.ExpiresAt)

	approved, err = c.IsApprovedForResale(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestRequestResaleReplacesPriorApproval(t *testing.T) {
	c, clk := newContract(t)
	ctx := context.Background()
	mint(t, c, "t1")

	_, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	clk.Advance(10 * time.Hour)
	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	approval, err := c.GetResaleApproval(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(24*time.Hour), approval.ExpiresAt)
}

func TestTransferTicket(t *testing.T) {
	c, clk := newContract(t)
	ctx := context.Background()
	mint(t, c, "t1")

	req := midnight.TransferRequest{TicketID: "t1", NewOwnerCommitment: "owner-2", TransferProof: transferProof("t1")}

	_, err := c.TransferTicket(ctx, req)
	assert.ErrorIs(t, err, midnight.ErrNotApproved)

	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	bad := req
	bad.TransferProof = ownershipProof("t1")
	_, err = c.TransferTicket(ctx, bad)
	assert.ErrorIs(t, err, midnight.ErrInvalidProof)

	resp, err := c.TransferTicket(ctx, req)
	require.NoError(t, err)
	assert.Len(t, resp.TransferCommitment, 64)

	state, err := c.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", state.OwnerCommitment)
	require.NotNil(t, state.TransferredAt)
	assert.Equal(t, clk.Now(), *state.TransferredAt)
	require.Len(t, state.Transfers, 1)
	assert.Equal(t, "owner-t1", state.Transfers[0].From)
	assert.Equal(t, "owner-2", state.Transfers[0].To)

	// the approval is consumed by the transfer
	_, err = c.TransferTicket(ctx, req)
	assert.ErrorIs(t, err, midnight.ErrNotApproved)
}

func TestTransferTicketExpiredApproval(t *testing.T) {
	c, clk := newContract(t)
	ctx := context.Background()
	mint(t, c, "t1")

	_, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	clk.Advance(24*time.Hour + time.Second)

	approved, err := c.IsApprovedForResale(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, approved)

	_, err = c.TransferTicket(ctx, midnight.TransferRequest{TicketID: "t1", NewOwnerCommitment: "o2", TransferProof: transferProof("t1")})
	assert.ErrorIs(t, err, midnight.ErrExpired)
}

func TestConcurrentTransferSingleWinner(t *testing.T) {
	c, _ := newContract(t)
	ctx := context.Background()
	mint(t, c, "t1")
	_, err := c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.TransferTicket(ctx, midnight.TransferRequest{TicketID: "t1", NewOwnerCommitment: "o2", TransferProof: transferProof("t1")})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
}

func TestCancelTicket(t *testing.T) {
	c, _ := newContract(t)
	ctx := context.Background()

	_, err := c.CancelTicket(ctx, midnight.CancelRequest{TicketID: "missing", OrganizerSig: "sig"})
	assert.ErrorIs(t, err, midnight.ErrNotFound)

	mint(t, c, "t1")
	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	require.NoError(t, err)

	_, err = c.CancelTicket(ctx, midnight.CancelRequest{TicketID: "t1"})
	assert.ErrorIs(t, err, midnight.ErrInvalidSignature)

	resp, err := c.CancelTicket(ctx, midnight.CancelRequest{TicketID: "t1", OrganizerSig: "sig"})
	require.NoError(t, err)
	assert.Len(t, resp.CancelCommitment, 64)

	state, err := c.TicketState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCanceled, state.Status)

	approval, err := c.GetResaleApproval(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, approval)

	_, err = c.CancelTicket(ctx, midnight.CancelRequest{TicketID: "t1", OrganizerSig: "sig"})
	assert.ErrorIs(t, err, midnight.ErrInvalidState)

	_, err = c.RequestResale(ctx, midnight.ResaleRequest{TicketID: "t1", BuyerProof: ownershipProof("t1")})
	assert.ErrorIs(t, err, midnight.ErrInvalidState)
}

func TestVerifyZKProof(t *testing.T) {
	c, _ := newContract(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		proof models.Proof
		want  bool
	}{
		{"ownership", ownershipProof("t1"), true},
		{"transfer", transferProof("t1"), true},
		{"missing signature", models.Proof{Type: models.ProofTypeOwnership, TicketID: "t1"}, false},
		{"unknown type", models.Proof{Type: "other", TicketID: "t1", Signature: "s"}, false},
		{"transfer without commitment", models.Proof{Type: models.ProofTypeTransfer, TicketID: "t1", Signature: "s"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := c.VerifyZKProof(ctx, tt.proof)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
