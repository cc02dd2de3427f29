package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/cardano"
	"ms-ticket-lifecycle/internal/commitment"
	"ms-ticket-lifecycle/internal/midnight"
	"ms-ticket-lifecycle/internal/models"
)

type MintRequest struct {
	TicketID    string         `json:"ticketId" validate:"required"`
	BuyerPubKey string         `json:"buyerPubKey" validate:"required"`
	Metadata    map[string]any `json:"metadata" validate:"required"`
}

type MintResult struct {
	TxHash         string         `json:"txHash"`
	PolicyID       string         `json:"policyId"`
	TokenName      string         `json:"tokenName"`
	CommitmentHash string         `json:"commitmentHash"`
	Ticket         *models.Ticket `json:"ticket"`
}

type CancelRequest struct {
	TicketID string `json:"ticketId" validate:"required"`
}

type CancelResult struct {
	BurnTxHash       string `json:"burnTxHash"`
	CancelCommitment string `json:"cancelCommitment"`
}

// Proofs are only checked for presence here. Their structure is judged by
// private state, which answers with InvalidProof.
type ResaleRequest struct {
	TicketID   string        `json:"ticketId" validate:"required"`
	BuyerProof *models.Proof `json:"buyerProof" validate:"required,structonly"`
}

type ResaleResult struct {
	Approved bool   `json:"approved"`
	TicketID string `json:"ticketId"`
}

type TransferRequest struct {
	TicketID       string        `json:"ticketId" validate:"required"`
	NewBuyerPubKey string        `json:"newBuyerPubKey" validate:"required"`
	TransferProof  *models.Proof `json:"transferProof" validate:"required,structonly"`
}

type TransferResult struct {
	TransferCommitment string                   `json:"transferCommitment"`
	Approval           *models.TransferApproval `json:"approval"`
}

// Mint creates a ticket: private state first, then the ledger anchor, then
// the record and its audit entry.
func (s *TicketService) Mint(ctx context.Context, caller *auth.Identity, req MintRequest) (result *MintResult, err error) {
	defer s.observe(models.OperationMint, req.TicketID, time.Now(), &err)

	if err := auth.Require(caller, auth.RoleOrganizer); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if title, _ := req.Metadata["title"].(string); title == "" {
		return nil, apperror.Validation("metadata.title is required")
	}

	unlock, err := s.lock(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := s.DB.TicketExists(ctx, req.TicketID)
	if err != nil {
		return nil, storeError("ticket", err)
	}
	if exists {
		return nil, apperror.Conflict(fmt.Sprintf("ticket %s already exists", req.TicketID))
	}

	salt, err := commitment.RandomSalt()
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "failed to generate salt", err)
	}
	ownerCommitment := commitment.OwnerCommitment(req.BuyerPubKey, salt)
	metadataHash, err := commitment.MetadataHash(req.Metadata)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeValidation, "metadata cannot be serialized", err)
	}
	// Private state returns the commitment that is anchored; the local one is
	// only logged for reconciliation.
	localCommitment := commitment.CommitmentHash(req.TicketID, ownerCommitment, salt)
	s.Logger.Debug("TICKET", fmt.Sprintf("Mint %s local commitment %s", req.TicketID, localCommitment))

	var minted *midnight.MintResponse
	err = s.call("midnight", "mintTicket", func() (err error) {
		minted, err = s.Midnight.MintTicket(ctx, midnight.MintRequest{
			TicketID:        req.TicketID,
			OwnerCommitment: ownerCommitment,
			MetadataHash:    metadataHash,
			OrganizerSig:    s.Signer.Sign(midnight.MintMessage(req.TicketID)),
		})
		return err
	})
	if err != nil {
		return nil, privateStateError(req.TicketID, err)
	}

	var tx *cardano.TxResponse
	err = s.call("cardano", "mintTx", func() (err error) {
		tx, err = s.Ledger.BuildAndSubmitMintTx(ctx, cardano.MintTxRequest{
			TicketID:       req.TicketID,
			CommitmentHash: minted.CommitmentHash,
			Metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("Ticket %s minted in private state but not anchored; needs reconciliation", req.TicketID))
		return nil, apperror.Downstream("ledger mint failed after private state was updated", err)
	}

	now := s.now()
	ticket := &models.Ticket{
		ID:              uuid.New().String(),
		TicketID:        req.TicketID,
		TokenName:       cardano.TokenName(req.TicketID),
		PolicyID:        s.Ledger.GetPolicyId(),
		CommitmentHash:  minted.CommitmentHash,
		OwnerCommitment: ownerCommitment,
		BuyerPubKey:     req.BuyerPubKey,
		Status:          models.TicketStatusActive,
		Metadata:        req.Metadata,
		TxHash:          tx.TxHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, storeError(fmt.Sprintf("ticket %s", req.TicketID), err)
	}

	err = s.record(ctx, models.OperationMint, req.TicketID, caller.ID, ticket.Status, map[string]any{
		"buyerPubKey":    req.BuyerPubKey,
		"txHash":         tx.TxHash,
		"commitmentHash": minted.CommitmentHash,
	})
	if err != nil {
		return nil, err
	}

	return &MintResult{
		TxHash:         tx.TxHash,
		PolicyID:       ticket.PolicyID,
		TokenName:      ticket.TokenName,
		CommitmentHash: ticket.CommitmentHash,
		Ticket:         ticket,
	}, nil
}

// Cancel burns an active ticket.
func (s *TicketService) Cancel(ctx context.Context, caller *auth.Identity, req CancelRequest) (result *CancelResult, err error) {
	defer s.observe(models.OperationCancel, req.TicketID, time.Now(), &err)

	if err := auth.Require(caller, auth.RoleOrganizer); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ticket, err := s.loadActive(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}

	var canceled *midnight.CancelResponse
	err = s.call("midnight", "cancelTicket", func() (err error) {
		canceled, err = s.Midnight.CancelTicket(ctx, midnight.CancelRequest{
			TicketID:     req.TicketID,
			OrganizerSig: s.Signer.Sign(midnight.CancelMessage(req.TicketID)),
		})
		return err
	})
	if err != nil {
		return nil, privateStateError(req.TicketID, err)
	}

	var tx *cardano.TxResponse
	err = s.call("cardano", "burnTx", func() (err error) {
		tx, err = s.Ledger.BuildAndSubmitBurnTx(ctx, cardano.BurnTxRequest{
			TicketID:         req.TicketID,
			PolicyID:         ticket.PolicyID,
			TokenName:        ticket.TokenName,
			CancelCommitment: canceled.CancelCommitment,
		})
		return err
	})
	if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("Ticket %s canceled in private state but not burned; needs reconciliation", req.TicketID))
		return nil, apperror.Downstream("ledger burn failed after private state was updated", err)
	}

	if err := s.DB.UpdateTicketStatus(ctx, req.TicketID, models.TicketStatusCanceled, tx.TxHash); err != nil {
		return nil, storeError(fmt.Sprintf("ticket %s", req.TicketID), err)
	}

	err = s.record(ctx, models.OperationCancel, req.TicketID, caller.ID, models.TicketStatusCanceled, map[string]any{
		"burnTxHash":       tx.TxHash,
		"cancelCommitment": canceled.CancelCommitment,
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{BurnTxHash: tx.TxHash, CancelCommitment: canceled.CancelCommitment}, nil
}

// RequestResale asks private state to approve the ticket for one transfer.
// The caller's role is trusted; ownership is not proven here.
func (s *TicketService) RequestResale(ctx context.Context, caller *auth.Identity, req ResaleRequest) (result *ResaleResult, err error) {
	defer s.observe(models.OperationRequestResale, req.TicketID, time.Now(), &err)

	if err := auth.Require(caller, auth.RoleBuyer, auth.RoleMarketplace); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.loadActive(ctx, req.TicketID); err != nil {
		return nil, err
	}

	var resale *midnight.ResaleResponse
	err = s.call("midnight", "requestResale", func() (err error) {
		resale, err = s.Midnight.RequestResale(ctx, midnight.ResaleRequest{
			TicketID:   req.TicketID,
			BuyerProof: *req.BuyerProof,
		})
		return err
	})
	if err != nil {
		return nil, privateStateError(req.TicketID, err)
	}
	if !resale.Approved {
		return nil, apperror.NotApproved(fmt.Sprintf("resale of ticket %s was not approved", req.TicketID))
	}

	err = s.record(ctx, models.OperationRequestResale, req.TicketID, caller.ID, models.TicketStatusActive, map[string]any{
		"approved":  true,
		"proofType": req.BuyerProof.Type,
	})
	if err != nil {
		return nil, err
	}
	return &ResaleResult{Approved: true, TicketID: req.TicketID}, nil
}

// Transfer moves an approved ticket to a new owner commitment. The record is
// marked transferred as soon as private state commits; the transfer approval
// stays pending until the ledger confirms.
func (s *TicketService) Transfer(ctx context.Context, caller *auth.Identity, req TransferRequest) (result *TransferResult, err error) {
	defer s.observe(models.OperationTransfer, req.TicketID, time.Now(), &err)

	if err := auth.Require(caller, auth.RoleBuyer, auth.RoleMarketplace); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.loadActive(ctx, req.TicketID); err != nil {
		return nil, err
	}
	if err := s.requireApproval(ctx, req.TicketID); err != nil {
		return nil, err
	}

	var proofOK bool
	err = s.call("midnight", "verifyProof", func() (err error) {
		proofOK, err = s.Midnight.VerifyZKProof(ctx, *req.TransferProof)
		return err
	})
	if err != nil {
		return nil, privateStateError(req.TicketID, err)
	}
	if !proofOK {
		return nil, apperror.InvalidProof("transfer proof failed validation")
	}

	salt, err := commitment.RandomSalt()
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "failed to generate salt", err)
	}
	newOwnerCommitment := commitment.OwnerCommitment(req.NewBuyerPubKey, salt)

	var transferred *midnight.TransferResponse
	err = s.call("midnight", "transferTicket", func() (err error) {
		transferred, err = s.Midnight.TransferTicket(ctx, midnight.TransferRequest{
			TicketID:           req.TicketID,
			NewOwnerCommitment: newOwnerCommitment,
			TransferProof:      *req.TransferProof,
		})
		return err
	})
	if err != nil {
		return nil, privateStateError(req.TicketID, err)
	}

	now := s.now()
	approval := &models.TransferApproval{
		ID:                 uuid.New().String(),
		TicketID:           req.TicketID,
		TransferCommitment: transferred.TransferCommitment,
		NewOwnerCommitment: newOwnerCommitment,
		Status:             models.TransferApprovalPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.TransferApprovalLifetime),
	}
	if err := s.DB.CreateTransferApproval(ctx, approval); err != nil {
		return nil, storeError(fmt.Sprintf("transfer approval for ticket %s", req.TicketID), err)
	}
	if err := s.DB.UpdateTicketOwner(ctx, req.TicketID, newOwnerCommitment, models.TicketStatusTransferred); err != nil {
		return nil, storeError(fmt.Sprintf("ticket %s", req.TicketID), err)
	}

	err = s.record(ctx, models.OperationTransfer, req.TicketID, caller.ID, models.TicketStatusTransferred, map[string]any{
		"newBuyerPubKey":     req.NewBuyerPubKey,
		"transferCommitment": transferred.TransferCommitment,
	})
	if err != nil {
		return nil, err
	}
	return &TransferResult{TransferCommitment: transferred.TransferCommitment, Approval: approval}, nil
}

// requireApproval tells a missing approval apart from an expired one.
func (s *TicketService) requireApproval(ctx context.Context, ticketID string) error {
	var approved bool
	err := s.call("midnight", "isApprovedForResale", func() (err error) {
		approved, err = s.Midnight.IsApprovedForResale(ctx, ticketID)
		return err
	})
	if err != nil {
		return privateStateError(ticketID, err)
	}
	if approved {
		return nil
	}

	var approval *midnight.ResaleApproval
	err = s.call("midnight", "getResaleApproval", func() (err error) {
		approval, err = s.Midnight.GetResaleApproval(ctx, ticketID)
		return err
	})
	if err != nil {
		return privateStateError(ticketID, err)
	}
	if approval != nil {
		return apperror.ExpiredApproval(fmt.Sprintf("resale approval for ticket %s expired at %s", ticketID, approval.ExpiresAt.Format(time.RFC3339)))
	}
	return apperror.NotApproved(fmt.Sprintf("ticket %s is not approved for resale", ticketID))
}
