package models

// TicketAnchor is the public, owner-free view of a ticket that a venue
// scanner needs to find the token on the ledger.
type TicketAnchor struct {
	TicketID       string       `json:"ticketId"`
	PolicyID       string       `json:"policyId"`
	TokenName      string       `json:"tokenName"`
	CommitmentHash string       `json:"commitmentHash"`
	TxHash         string       `json:"txHash"`
	Status         TicketStatus `json:"status"`
}

func (t *Ticket) Anchor() TicketAnchor {
	return TicketAnchor{
		TicketID:       t.TicketID,
		PolicyID:       t.PolicyID,
		TokenName:      t.TokenName,
		CommitmentHash: t.CommitmentHash,
		TxHash:         t.TxHash,
		Status:         t.Status,
	}
}
