package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransferApprovalStatus string

const (
	TransferApprovalPending   TransferApprovalStatus = "pending"
	TransferApprovalApproved  TransferApprovalStatus = "approved"
	TransferApprovalCompleted TransferApprovalStatus = "completed"
)

// TransferApproval is written when a transfer commits in private state.
// Promotion past pending belongs to whatever watches the ledger.
type TransferApproval struct {
	bun.BaseModel `bun:"table:transfer_approvals"`

	ID                 string                 `bun:"id,pk" json:"id"`
	TicketID           string                 `bun:"ticket_id,notnull,unique" json:"ticketId"`
	TransferCommitment string                 `bun:"transfer_commitment,notnull" json:"transferCommitment"`
	NewOwnerCommitment string                 `bun:"new_owner_commitment,notnull" json:"newOwnerCommitment"`
	Status             TransferApprovalStatus `bun:"status,notnull" json:"status"`
	CreatedAt          time.Time              `bun:"created_at,notnull" json:"createdAt"`
	ExpiresAt          time.Time              `bun:"expires_at,notnull" json:"expiresAt"`
}
