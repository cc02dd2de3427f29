package midnight

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ms-ticket-lifecycle/internal/commitment"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/models"
)

// SignatureVerifier reports whether sig is a valid organizer signature over
// message.
type SignatureVerifier func(sig, message string) bool

// Contract is the in-process private-state contract. All state lives in the
// injected StateStore.
type Contract struct {
	Store            StateStore
	VerifySignature  SignatureVerifier
	ApprovalLifetime time.Duration
	Now              func() time.Time
	Logger           *logger.Logger
}

// NewContract builds a contract over store. A nil verifier accepts any
// non-empty signature.
func NewContract(store StateStore, verify SignatureVerifier, log *logger.Logger) *Contract {
	if log == nil {
		log = logger.Discard()
	}
	return &Contract{
		Store:            store,
		VerifySignature:  verify,
		ApprovalLifetime: DefaultApprovalLifetime,
		Now:              time.Now,
		Logger:           log,
	}
}

func (c *Contract) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Contract) signatureValid(sig, message string) bool {
	if sig == "" {
		return false
	}
	if c.VerifySignature == nil {
		return true
	}
	return c.VerifySignature(sig, message)
}

func (c *Contract) MintTicket(ctx context.Context, req MintRequest) (*MintResponse, error) {
	if !c.signatureValid(req.OrganizerSig, MintMessage(req.TicketID)) {
		return nil, ErrInvalidSignature
	}
	if req.TicketID == "" || req.OwnerCommitment == "" || req.MetadataHash == "" {
		return nil, fmt.Errorf("%w: ticketId, ownerCommitment and metadataHash are required", ErrInvalidRequest)
	}

	now := c.now()
	err := c.Store.Create(ctx, TicketState{
		TicketID:        req.TicketID,
		OwnerCommitment: req.OwnerCommitment,
		MetadataHash:    req.MetadataHash,
		Status:          models.TicketStatusActive,
		CreatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	hash := commitment.Hash(req.TicketID + req.OwnerCommitment + req.MetadataHash)
	c.Logger.Info("MIDNIGHT", fmt.Sprintf("Minted private ticket %s", req.TicketID))

	return &MintResponse{
		CommitmentHash: hash,
		TicketID:       req.TicketID,
		Timestamp:      now,
	}, nil
}

func (c *Contract) RequestResale(ctx context.Context, req ResaleRequest) (*ResaleResponse, error) {
	now := c.now()

	err := c.Store.Update(ctx, req.TicketID, func(entry *Entry) error {
		if entry.Ticket.Status != models.TicketStatusActive {
			return ErrInvalidState
		}
		if !validOwnershipProof(req.TicketID, req.BuyerProof) {
			return ErrInvalidProof
		}
		entry.Approval = &ResaleApproval{
			TicketID:   req.TicketID,
			ApprovedAt: now,
			ExpiresAt:  now.Add(c.ApprovalLifetime),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info("MIDNIGHT", fmt.Sprintf("Resale approved for ticket %s", req.TicketID))
	return &ResaleResponse{Approved: true, TicketID: req.TicketID, Timestamp: now}, nil
}

func (c *Contract) TransferTicket(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	if req.NewOwnerCommitment == "" {
		return nil, fmt.Errorf("%w: newOwnerCommitment is required", ErrInvalidRequest)
	}
	now := c.now()

	err := c.Store.Update(ctx, req.TicketID, func(entry *Entry) error {
		if entry.Ticket.Status != models.TicketStatusActive {
			return ErrInvalidState
		}
		if entry.Approval == nil {
			return ErrNotApproved
		}
		if entry.Approval.Expired(now) {
			return ErrExpired
		}
		if !validTransferProof(req.TicketID, req.TransferProof) {
			return ErrInvalidProof
		}

		entry.Ticket.Transfers = append(entry.Ticket.Transfers, TransferEntry{
			From:      entry.Ticket.OwnerCommitment,
			To:        req.NewOwnerCommitment,
			Timestamp: now,
		})
		entry.Ticket.OwnerCommitment = req.NewOwnerCommitment
		transferredAt := now
		entry.Ticket.TransferredAt = &transferredAt
		entry.Approval = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	hash := commitment.Hash(req.TicketID + req.NewOwnerCommitment + strconv.FormatInt(now.UnixMilli(), 10))
	c.Logger.Info("MIDNIGHT", fmt.Sprintf("Transferred private ticket %s", req.TicketID))

	return &TransferResponse{
		TransferCommitment: hash,
		TicketID:           req.TicketID,
		Timestamp:          now,
	}, nil
}

func (c *Contract) CancelTicket(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	now := c.now()

	err := c.Store.Update(ctx, req.TicketID, func(entry *Entry) error {
		if entry.Ticket.Status != models.TicketStatusActive {
			return ErrInvalidState
		}
		if !c.signatureValid(req.OrganizerSig, CancelMessage(req.TicketID)) {
			return ErrInvalidSignature
		}
		entry.Ticket.Status = models.TicketStatusCanceled
		entry.Approval = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	hash := commitment.Hash(req.TicketID + "canceled" + strconv.FormatInt(now.UnixMilli(), 10))
	c.Logger.Info("MIDNIGHT", fmt.Sprintf("Canceled private ticket %s", req.TicketID))

	return &CancelResponse{
		CancelCommitment: hash,
		TicketID:         req.TicketID,
		Timestamp:        now,
	}, nil
}

func (c *Contract) VerifyZKProof(_ context.Context, proof models.Proof) (bool, error) {
	return ValidateProof(proof), nil
}

func (c *Contract) IsApprovedForResale(ctx context.Context, ticketID string) (bool, error) {
	approval, err := c.GetResaleApproval(ctx, ticketID)
	if err != nil || approval == nil {
		return false, err
	}
	return !approval.Expired(c.now()), nil
}

func (c *Contract) GetResaleApproval(ctx context.Context, ticketID string) (*ResaleApproval, error) {
	entry, err := c.Store.Get(ctx, ticketID)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Approval, nil
}

// TicketState exposes the private record for a ticket, including its
// transfer history.
func (c *Contract) TicketState(ctx context.Context, ticketID string) (*TicketState, error) {
	entry, err := c.Store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &entry.Ticket, nil
}
