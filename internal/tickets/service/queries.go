package tickets

import (
	"context"
	"errors"
	"fmt"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/cardano"
	"ms-ticket-lifecycle/internal/models"
	"ms-ticket-lifecycle/internal/tickets/db"
)

// GetTicket returns the full record to any authenticated caller.
func (s *TicketService) GetTicket(ctx context.Context, caller *auth.Identity, ticketID string) (*models.Ticket, error) {
	if err := auth.Require(caller); err != nil {
		return nil, err
	}
	if ticketID == "" {
		return nil, apperror.Validation("ticketId is required")
	}
	ticket, err := s.DB.GetTicketByTicketID(ctx, ticketID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("ticket %s", ticketID), err)
	}
	return ticket, nil
}

// ListAuditLogs returns a ticket's audit trail, oldest first.
func (s *TicketService) ListAuditLogs(ctx context.Context, caller *auth.Identity, ticketID string) ([]models.AuditLog, error) {
	if err := auth.Require(caller, auth.RoleOrganizer); err != nil {
		return nil, err
	}
	exists, err := s.DB.TicketExists(ctx, ticketID)
	if err != nil {
		return nil, storeError("ticket", err)
	}
	if !exists {
		return nil, apperror.NotFound(fmt.Sprintf("ticket %s not found", ticketID))
	}
	logs, err := s.DB.ListAuditLogs(ctx, ticketID)
	if err != nil {
		return nil, storeError("audit log", err)
	}
	return logs, nil
}

func (s *TicketService) TransactionStatus(ctx context.Context, caller *auth.Identity, txHash string) (*cardano.TxResponse, error) {
	if err := auth.Require(caller); err != nil {
		return nil, err
	}
	var tx *cardano.TxResponse
	err := s.call("cardano", "txStatus", func() (err error) {
		tx, err = s.Ledger.GetTransactionStatus(ctx, txHash)
		return err
	})
	if errors.Is(err, cardano.ErrTxNotFound) {
		return nil, apperror.NotFound(fmt.Sprintf("transaction %s not found", txHash))
	}
	if err != nil {
		return nil, apperror.Downstream("ledger status lookup failed", err)
	}
	return tx, nil
}

// TicketQR renders the encrypted anchor QR for a ticket as PNG bytes.
func (s *TicketService) TicketQR(ctx context.Context, caller *auth.Identity, ticketID string) ([]byte, error) {
	ticket, err := s.GetTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	if s.QR == nil {
		return nil, apperror.New(apperror.CodeInternal, "qr generation is not configured")
	}
	png, err := s.QR.GenerateEncryptedQR(ticket.Anchor())
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "failed to generate qr code", err)
	}
	return png, nil
}

// ConfirmLedger handles a ledger confirmation. A confirmed transfer completes
// its pending transfer approval; other operations are only logged.
func (s *TicketService) ConfirmLedger(ctx context.Context, conf models.LedgerConfirmation) error {
	s.Logger.LogLedger("CONFIRMED", conf.TxHash, fmt.Sprintf("%s %s at block %d", conf.Operation, conf.TicketID, conf.BlockHeight))
	if conf.Operation != models.OperationTransfer {
		return nil
	}

	approval, err := s.DB.GetTransferApproval(ctx, conf.TicketID)
	if errors.Is(err, db.ErrNotFound) {
		s.Logger.Warn("LEDGER", fmt.Sprintf("No transfer approval for confirmed ticket %s", conf.TicketID))
		return nil
	}
	if err != nil {
		return err
	}
	if approval.Status == models.TransferApprovalCompleted {
		return nil
	}
	return s.DB.UpdateTransferApprovalStatus(ctx, conf.TicketID, models.TransferApprovalCompleted)
}
