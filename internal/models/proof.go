package models

const (
	ProofTypeOwnership = "ownership_proof"
	ProofTypeTransfer  = "transfer_proof"
)

// Proof is the caller-supplied stand-in for a zero-knowledge proof. Ownership
// proofs gate resale requests; transfer proofs gate transfers.
type Proof struct {
	Type               string `json:"type" validate:"required,oneof=ownership_proof transfer_proof"`
	TicketID           string `json:"ticketId" validate:"required"`
	NewOwnerCommitment string `json:"newOwnerCommitment,omitempty" validate:"required_if=Type transfer_proof"`
	Signature          string `json:"signature" validate:"required"`
	Timestamp          int64  `json:"timestamp"`
}
