// Package cardano anchors ticket commitments on the public ledger. The mock
// ledger derives deterministic transaction hashes in process; the Blockfrost
// client submits signed transactions to a real network.
package cardano

import (
	"context"
	"errors"
	"time"
)

type TxStatus string

const (
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
)

var ErrTxNotFound = errors.New("transaction not found")

type MintTxRequest struct {
	TicketID       string         `json:"ticketId"`
	CommitmentHash string         `json:"commitmentHash"`
	Metadata       map[string]any `json:"metadata"`
}

type BurnTxRequest struct {
	TicketID         string `json:"ticketId"`
	PolicyID         string `json:"policyId"`
	TokenName        string `json:"tokenName"`
	CancelCommitment string `json:"cancelCommitment"`
}

type TxResponse struct {
	TxHash      string    `json:"txHash"`
	Status      TxStatus  `json:"status"`
	BlockHeight *int64    `json:"blockHeight,omitempty"`
	SubmittedAt time.Time `json:"submittedAt,omitempty"`
}

// LedgerClient is implemented by the mock ledger and the Blockfrost client.
type LedgerClient interface {
	BuildAndSubmitMintTx(ctx context.Context, req MintTxRequest) (*TxResponse, error)
	BuildAndSubmitBurnTx(ctx context.Context, req BurnTxRequest) (*TxResponse, error)
	GetTransactionStatus(ctx context.Context, txHash string) (*TxResponse, error)
	GetPolicyId() string
	VerifyOrganizerSignature(sig, message, pubKeyHash string) bool
}

// TokenName is the asset name a ticket is minted under.
func TokenName(ticketID string) string {
	return "TICKET#" + ticketID
}

var (
	_ LedgerClient = (*MockLedger)(nil)
	_ LedgerClient = (*BlockfrostClient)(nil)
)
