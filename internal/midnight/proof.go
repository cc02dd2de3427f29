package midnight

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"ms-ticket-lifecycle/internal/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func proofValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateProof checks that a proof carries the fields its type requires.
// It stands in for real zero-knowledge verification.
func ValidateProof(proof models.Proof) bool {
	return proofValidator().Struct(proof) == nil
}

// validOwnershipProof is a structurally valid ownership proof for ticketID.
func validOwnershipProof(ticketID string, proof models.Proof) bool {
	return proof.Type == models.ProofTypeOwnership &&
		proof.TicketID == ticketID &&
		ValidateProof(proof)
}

// validTransferProof is a structurally valid transfer proof for ticketID.
func validTransferProof(ticketID string, proof models.Proof) bool {
	return proof.Type == models.ProofTypeTransfer &&
		proof.TicketID == ticketID &&
		ValidateProof(proof)
}
