package cardano

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-ticket-lifecycle/internal/logger"
)

var networkURLs = map[string]string{
	"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
	"preprod": "https://cardano-preprod.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
	"testnet": "https://cardano-preprod.blockfrost.io/api/v0",
}

// BlockfrostClient builds balanced, organizer-signed transactions from the
// organizer's own UTxOs and submits them through the Blockfrost API. Tickets
// are minted under a native script policy requiring the organizer key, and
// minted tokens are held at the organizer's enterprise address.
type BlockfrostClient struct {
	baseURL      string
	projectID    string
	policyID     string
	policyScript []byte
	address      []byte
	bech32       string
	key          *OrganizerKey
	keys         KeyRing
	client       *http.Client
	logger       *logger.Logger
}

// NewBlockfrostClient targets baseURL, or the public endpoint for network
// when baseURL is empty.
func NewBlockfrostClient(baseURL, network, projectID string, key *OrganizerKey, timeout time.Duration, log *logger.Logger) (*BlockfrostClient, error) {
	if baseURL == "" {
		u, ok := networkURLs[network]
		if !ok {
			return nil, fmt.Errorf("unknown cardano network %q", network)
		}
		baseURL = u
	}
	if key == nil {
		return nil, fmt.Errorf("blockfrost client requires an organizer key")
	}
	if log == nil {
		log = logger.Discard()
	}
	keys := KeyRing{}
	keys.Add(key.PublicKey())
	script, policyID := SignaturePolicy(key.PublicKey())
	address, bech32 := EnterpriseAddress(key.PublicKey(), network)

	return &BlockfrostClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		projectID:    projectID,
		policyID:     policyID,
		policyScript: script,
		address:      address,
		bech32:       bech32,
		key:          key,
		keys:         keys,
		client:       &http.Client{Timeout: timeout},
		logger:       log,
	}, nil
}

// Address is the bech32 organizer address that funds transactions and holds
// minted tickets.
func (c *BlockfrostClient) Address() string {
	return c.bech32
}

func (c *BlockfrostClient) BuildAndSubmitMintTx(ctx context.Context, req MintTxRequest) (*TxResponse, error) {
	metadata := GenerateNFTMetadata(c.policyID, req.TicketID, req.CommitmentHash, req.Metadata)
	return c.submit(ctx, req.TicketID, TokenName(req.TicketID), 1, metadata)
}

func (c *BlockfrostClient) BuildAndSubmitBurnTx(ctx context.Context, req BurnTxRequest) (*TxResponse, error) {
	policyID := req.PolicyID
	if policyID == "" {
		policyID = c.policyID
	}
	if policyID != c.policyID {
		return nil, fmt.Errorf("cannot burn under policy %s: organizer key only signs %s", policyID, c.policyID)
	}
	tokenName := req.TokenName
	if tokenName == "" {
		tokenName = TokenName(req.TicketID)
	}
	return c.submit(ctx, req.TicketID, tokenName, -1, GenerateCancelMetadata(policyID, req.CancelCommitment))
}

func (c *BlockfrostClient) submit(ctx context.Context, ticketID, tokenName string, quantity int64, metadata map[string]any) (*TxResponse, error) {
	auxData, err := EncodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	var params protocolParams
	if err := c.get(ctx, "/epochs/latest/parameters", &params); err != nil {
		return nil, fmt.Errorf("blockfrost protocol parameters: %w", err)
	}
	var utxos []utxo
	if err := c.get(ctx, "/addresses/"+url.PathEscape(c.bech32)+"/utxos", &utxos); err != nil {
		if errors.Is(err, errNotIndexed) {
			return nil, fmt.Errorf("organizer address %s has no funds: %w", c.bech32, errInsufficientFunds)
		}
		return nil, fmt.Errorf("blockfrost utxos: %w", err)
	}

	tx, err := c.buildTx(utxos, params, mintPlan{AssetName: assetName(tokenName), Quantity: quantity, AuxData: auxData})
	if err != nil {
		c.logger.Error("LEDGER", fmt.Sprintf("Building tx for ticket %s failed: %v", ticketID, err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx/submit", bytes.NewReader(tx.Raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/cbor")
	httpReq.Header.Set("project_id", c.projectID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("LEDGER", fmt.Sprintf("Submit for ticket %s failed: %v", ticketID, err))
		return nil, fmt.Errorf("blockfrost submit: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blockfrost submit: status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	txHash := tx.Hash
	var submitted string
	if err := json.Unmarshal(payload, &submitted); err == nil && submitted != "" {
		txHash = submitted
	}

	c.logger.LogLedger("SUBMIT", txHash, fmt.Sprintf("Submitted %s x%d for ticket %s, fee %d", tokenName, quantity, ticketID, tx.Fee))
	return &TxResponse{TxHash: txHash, Status: TxStatusSubmitted, SubmittedAt: time.Now()}, nil
}

var errNotIndexed = errors.New("not indexed")

// get decodes a Blockfrost JSON response into out. A 404 is errNotIndexed.
func (c *BlockfrostClient) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("project_id", c.projectID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return errNotIndexed
	default:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
}

func (c *BlockfrostClient) GetTransactionStatus(ctx context.Context, txHash string) (*TxResponse, error) {
	var tx struct {
		BlockHeight *int64 `json:"block_height"`
	}
	err := c.get(ctx, "/txs/"+url.PathEscape(txHash), &tx)
	if errors.Is(err, errNotIndexed) {
		// Blockfrost only indexes transactions once they are in a block.
		return &TxResponse{TxHash: txHash, Status: TxStatusSubmitted}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockfrost tx status: %w", err)
	}
	return &TxResponse{TxHash: txHash, Status: TxStatusConfirmed, BlockHeight: tx.BlockHeight}, nil
}

func (c *BlockfrostClient) GetPolicyId() string {
	return c.policyID
}

func (c *BlockfrostClient) VerifyOrganizerSignature(sig, message, pubKeyHash string) bool {
	return c.keys.Verify(sig, message, pubKeyHash)
}
