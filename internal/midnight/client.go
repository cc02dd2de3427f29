// Package midnight is the private-state side of the ticket protocol. It holds
// the authoritative owner commitment of every ticket and the resale approvals
// that gate transfers.
package midnight

import (
	"context"
	"errors"
	"time"

	"ms-ticket-lifecycle/internal/models"
)

var (
	ErrAlreadyExists    = errors.New("ticket already exists in private state")
	ErrNotFound         = errors.New("ticket not found in private state")
	ErrInvalidState     = errors.New("ticket is not active")
	ErrInvalidSignature = errors.New("invalid organizer signature")
	ErrInvalidProof     = errors.New("invalid proof")
	ErrNotApproved      = errors.New("ticket not approved for resale")
	ErrExpired          = errors.New("resale approval expired")
	ErrInvalidRequest   = errors.New("invalid private-state request")
)

// DefaultApprovalLifetime is how long a resale approval stays usable.
const DefaultApprovalLifetime = 24 * time.Hour

type MintRequest struct {
	TicketID        string `json:"ticketId"`
	OwnerCommitment string `json:"ownerCommitment"`
	MetadataHash    string `json:"metadataHash"`
	OrganizerSig    string `json:"organizerSig"`
}

type MintResponse struct {
	CommitmentHash string    `json:"commitmentHash"`
	TicketID       string    `json:"ticketId"`
	Timestamp      time.Time `json:"timestamp"`
}

type ResaleRequest struct {
	TicketID   string       `json:"ticketId"`
	BuyerProof models.Proof `json:"buyerProof"`
}

type ResaleResponse struct {
	Approved  bool      `json:"approved"`
	TicketID  string    `json:"ticketId"`
	Timestamp time.Time `json:"timestamp"`
}

type TransferRequest struct {
	TicketID           string       `json:"ticketId"`
	NewOwnerCommitment string       `json:"newOwnerCommitment"`
	TransferProof      models.Proof `json:"transferProof"`
}

type TransferResponse struct {
	TransferCommitment string    `json:"transferCommitment"`
	TicketID           string    `json:"ticketId"`
	Timestamp          time.Time `json:"timestamp"`
}

type CancelRequest struct {
	TicketID     string `json:"ticketId"`
	OrganizerSig string `json:"organizerSig"`
}

type CancelResponse struct {
	CancelCommitment string    `json:"cancelCommitment"`
	TicketID         string    `json:"ticketId"`
	Timestamp        time.Time `json:"timestamp"`
}

// PrivateStateClient is implemented by the in-process Contract and by the
// HTTP client that talks to a deployed contract service.
type PrivateStateClient interface {
	MintTicket(ctx context.Context, req MintRequest) (*MintResponse, error)
	RequestResale(ctx context.Context, req ResaleRequest) (*ResaleResponse, error)
	TransferTicket(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	CancelTicket(ctx context.Context, req CancelRequest) (*CancelResponse, error)
	VerifyZKProof(ctx context.Context, proof models.Proof) (bool, error)
	IsApprovedForResale(ctx context.Context, ticketID string) (bool, error)
	// GetResaleApproval returns the stored approval, expired or not, or nil
	// when the ticket has none.
	GetResaleApproval(ctx context.Context, ticketID string) (*ResaleApproval, error)
}

// MintMessage is the payload an organizer signs to authorize a mint.
func MintMessage(ticketID string) string {
	return "mint:" + ticketID
}

// CancelMessage is the payload an organizer signs to authorize a cancel.
func CancelMessage(ticketID string) string {
	return "cancel:" + ticketID
}

var (
	_ PrivateStateClient = (*Contract)(nil)
	_ PrivateStateClient = (*HTTPClient)(nil)
	_ StateStore         = (*MemoryStateStore)(nil)
	_ StateStore         = (*RedisStateStore)(nil)
)
