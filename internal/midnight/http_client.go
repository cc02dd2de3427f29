package midnight

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
	"ms-ticket-lifecycle/internal/models"
)

// Error codes returned by a deployed contract service.
const (
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeInvalidProof     = "INVALID_PROOF"
	CodeNotApproved      = "NOT_APPROVED"
	CodeExpired          = "EXPIRED"
	CodeInvalidRequest   = "INVALID_REQUEST"
)

var codeErrors = map[string]error{
	CodeAlreadyExists:    ErrAlreadyExists,
	CodeNotFound:         ErrNotFound,
	CodeInvalidState:     ErrInvalidState,
	CodeInvalidSignature: ErrInvalidSignature,
	CodeInvalidProof:     ErrInvalidProof,
	CodeNotApproved:      ErrNotApproved,
	CodeExpired:          ErrExpired,
	CodeInvalidRequest:   ErrInvalidRequest,
}

// ErrorCode maps a contract sentinel to its wire code. Unknown errors map to
// the empty string.
func ErrorCode(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

type remoteError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPClient talks to a deployed contract service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

func (c *HTTPClient) MintTicket(ctx context.Context, req MintRequest) (*MintResponse, error) {
	var resp MintResponse
	if err := c.do(ctx, http.MethodPost, "/midnight/mintTicket", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RequestResale(ctx context.Context, req ResaleRequest) (*ResaleResponse, error) {
	var resp ResaleResponse
	if err := c.do(ctx, http.MethodPost, "/midnight/requestResale", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) TransferTicket(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var resp TransferResponse
	if err := c.do(ctx, http.MethodPost, "/midnight/transferTicket", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CancelTicket(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, "/midnight/cancelTicket", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) VerifyZKProof(ctx context.Context, proof models.Proof) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodPost, "/midnight/verifyProof", proof, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *HTTPClient) IsApprovedForResale(ctx context.Context, ticketID string) (bool, error) {
	var resp struct {
		Approved bool `json:"approved"`
	}
	path := "/midnight/resaleApproval/" + url.PathEscape(ticketID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Approved, nil
}

func (c *HTTPClient) GetResaleApproval(ctx context.Context, ticketID string) (*ResaleApproval, error) {
	var resp ResaleApproval
	err := c.do(ctx, http.MethodGet, "/midnight/resaleApproval/"+url.PathEscape(ticketID), nil, &resp)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotApproved) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("MIDNIGHT", fmt.Sprintf("Request %s %s failed: %v", method, path, err))
		return fmt.Errorf("midnight request %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("MIDNIGHT", fmt.Sprintf("Error closing response body: %v", cerr))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		var remote remoteError
		if json.Unmarshal(raw, &remote) == nil {
			if sentinel, ok := codeErrors[remote.Error]; ok {
				return fmt.Errorf("%w: %s", sentinel, remote.Message)
			}
		}
		return fmt.Errorf("midnight request %s: unexpected status %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
