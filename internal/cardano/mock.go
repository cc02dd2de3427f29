package cardano

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-ticket-lifecycle/internal/logger"
)

type ledgerTx struct {
	status      TxStatus
	blockHeight *int64
	metadata    []byte
	submittedAt time.Time
}

// MockLedger records transactions in memory. Transaction hashes are
// deterministic in the ticket id and the anchored commitment.
type MockLedger struct {
	policyID string
	keys     KeyRing
	Now      func() time.Time
	Logger   *logger.Logger

	mu  sync.RWMutex
	txs map[string]*ledgerTx
}

func NewMockLedger(policyScript string, log *logger.Logger, organizers ...*OrganizerKey) *MockLedger {
	if log == nil {
		log = logger.Discard()
	}
	keys := KeyRing{}
	for _, k := range organizers {
		keys.Add(k.PublicKey())
	}
	return &MockLedger{
		policyID: PolicyID([]byte(policyScript)),
		keys:     keys,
		Now:      time.Now,
		Logger:   log,
		txs:      make(map[string]*ledgerTx),
	}
}

func (m *MockLedger) BuildAndSubmitMintTx(ctx context.Context, req MintTxRequest) (*TxResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metadata, err := EncodeMetadata(GenerateNFTMetadata(m.policyID, req.TicketID, req.CommitmentHash, req.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to build mint metadata: %w", err)
	}

	txHash := hash256([]byte("mint-" + req.TicketID + "-" + req.CommitmentHash))
	resp := m.record(txHash, metadata)
	m.Logger.LogLedger("MINT", txHash, fmt.Sprintf("[MOCK] Mint submitted for ticket %s", req.TicketID))
	return resp, nil
}

func (m *MockLedger) BuildAndSubmitBurnTx(ctx context.Context, req BurnTxRequest) (*TxResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	policyID := req.PolicyID
	if policyID == "" {
		policyID = m.policyID
	}
	metadata, err := EncodeMetadata(GenerateCancelMetadata(policyID, req.CancelCommitment))
	if err != nil {
		return nil, fmt.Errorf("failed to build burn metadata: %w", err)
	}

	txHash := hash256([]byte("burn-" + req.TicketID + "-" + req.CancelCommitment))
	resp := m.record(txHash, metadata)
	m.Logger.LogLedger("BURN", txHash, fmt.Sprintf("[MOCK] Burn submitted for %s", req.TokenName))
	return resp, nil
}

func (m *MockLedger) record(txHash string, metadata []byte) *TxResponse {
	now := m.Now()
	m.mu.Lock()
	m.txs[txHash] = &ledgerTx{status: TxStatusSubmitted, metadata: metadata, submittedAt: now}
	m.mu.Unlock()
	return &TxResponse{TxHash: txHash, Status: TxStatusSubmitted, SubmittedAt: now}
}

func (m *MockLedger) GetTransactionStatus(_ context.Context, txHash string) (*TxResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[txHash]
	if !ok {
		return nil, ErrTxNotFound
	}
	return &TxResponse{
		TxHash:      txHash,
		Status:      tx.status,
		BlockHeight: tx.blockHeight,
		SubmittedAt: tx.submittedAt,
	}, nil
}

// Confirm marks a submitted transaction as included at blockHeight.
func (m *MockLedger) Confirm(txHash string, blockHeight int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txHash]
	if !ok {
		return ErrTxNotFound
	}
	tx.status = TxStatusConfirmed
	tx.blockHeight = &blockHeight
	return nil
}

// Metadata returns the decoded metadata a transaction carried.
func (m *MockLedger) Metadata(txHash string) (map[string]any, error) {
	m.mu.RLock()
	tx, ok := m.txs[txHash]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTxNotFound
	}
	return DecodeMetadata(tx.metadata)
}

func (m *MockLedger) GetPolicyId() string {
	return m.policyID
}

func (m *MockLedger) VerifyOrganizerSignature(sig, message, pubKeyHash string) bool {
	return m.keys.Verify(sig, message, pubKeyHash)
}
