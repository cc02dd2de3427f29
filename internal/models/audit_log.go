package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Operation string

const (
	OperationMint          Operation = "MINT"
	OperationCancel        Operation = "CANCEL"
	OperationRequestResale Operation = "REQUEST_RESALE"
	OperationTransfer      Operation = "TRANSFER"
)

// AuditLog is append-only; nothing updates or deletes these rows.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	ID          string         `bun:"id,pk" json:"id"`
	Operation   Operation      `bun:"operation,notnull" json:"operation"`
	TicketID    string         `bun:"ticket_id,notnull" json:"ticketId"`
	RequestorID string         `bun:"requestor_id,notnull" json:"requestorId"`
	Details     map[string]any `bun:"details,notnull" json:"details"`
	Timestamp   time.Time      `bun:"timestamp,notnull" json:"timestamp"`
}
