package models

import "time"

// TicketEvent is published to the event stream after a lifecycle operation
// has been fully recorded.
type TicketEvent struct {
	EventID     string         `json:"eventId"`
	Operation   Operation      `json:"operation"`
	TicketID    string         `json:"ticketId"`
	RequestorID string         `json:"requestorId"`
	Status      TicketStatus   `json:"status"`
	Details     map[string]any `json:"details,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// LedgerConfirmation reports that an anchoring transaction reached a block.
type LedgerConfirmation struct {
	TicketID    string    `json:"ticketId"`
	Operation   Operation `json:"operation"`
	TxHash      string    `json:"txHash"`
	BlockHeight int64     `json:"blockHeight"`
}
