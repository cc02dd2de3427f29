package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusActive      TicketStatus = "active"
	TicketStatusCanceled    TicketStatus = "canceled"
	TicketStatusTransferred TicketStatus = "transferred"
)

// Ticket is the public-facing record of an anchored ticket.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID              string         `bun:"id,pk" json:"id"`
	TicketID        string         `bun:"ticket_id,notnull,unique" json:"ticketId"`
	TokenName       string         `bun:"token_name,notnull" json:"tokenName"`
	PolicyID        string         `bun:"policy_id,notnull" json:"policyId"`
	CommitmentHash  string         `bun:"commitment_hash,notnull" json:"commitmentHash"`
	OwnerCommitment string         `bun:"owner_commitment,notnull" json:"ownerCommitment"`
	BuyerPubKey     string         `bun:"buyer_pub_key,notnull" json:"buyerPubKey"`
	Status          TicketStatus   `bun:"status,notnull" json:"status"`
	Metadata        map[string]any `bun:"metadata,notnull" json:"metadata"`
	TxHash          string         `bun:"tx_hash,notnull" json:"txHash"`
	BurnTxHash      string         `bun:"burn_tx_hash,nullzero" json:"burnTxHash,omitempty"`
	CreatedAt       time.Time      `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time      `bun:"updated_at,notnull" json:"updatedAt"`
}

func (t *Ticket) IsActive() bool {
	return t.Status == TicketStatusActive
}
