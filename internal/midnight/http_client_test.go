package midnight_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ticket-lifecycle/internal/midnight"
)

func TestHTTPClientMintTicket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/midnight/mintTicket", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req midnight.MintRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "t1", req.TicketID)

		_ = json.NewEncoder(w).Encode(midnight.MintResponse{CommitmentHash: "abc", TicketID: req.TicketID})
	}))
	defer server.Close()

	client := midnight.NewHTTPClient(server.URL+"/", "secret", 5*time.Second, nil)
	resp, err := client.MintTicket(context.Background(), midnight.MintRequest{TicketID: "t1", OwnerCommitment: "o", MetadataHash: "m", OrganizerSig: "s"})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.CommitmentHash)
}

func TestHTTPClientMapsErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{midnight.CodeAlreadyExists, midnight.ErrAlreadyExists},
		{midnight.CodeNotFound, midnight.ErrNotFound},
		{midnight.CodeInvalidState, midnight.ErrInvalidState},
		{midnight.CodeInvalidProof, midnight.ErrInvalidProof},
		{midnight.CodeNotApproved, midnight.ErrNotApproved},
		{midnight.CodeExpired, midnight.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": tt.code, "message": "rejected"})
			}))
			defer server.Close()

			client := midnight.NewHTTPClient(server.URL, "", time.Second, nil)
			_, err := client.TransferTicket(context.Background(), midnight.TransferRequest{TicketID: "t1"})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, midnight.ErrorCode(err))
		})
	}
}

func TestHTTPClientUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := midnight.NewHTTPClient(server.URL, "", time.Second, nil)
	_, err := client.CancelTicket(context.Background(), midnight.CancelRequest{TicketID: "t1", OrganizerSig: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Empty(t, midnight.ErrorCode(err))
}

func TestHTTPClientResaleApproval(t *testing.T) {
	expires := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/midnight/resaleApproval/t1/status":
			_ = json.NewEncoder(w).Encode(map[string]bool{"approved": true})
		case "/midnight/resaleApproval/t1":
			_ = json.NewEncoder(w).Encode(midnight.ResaleApproval{TicketID: "t1", ExpiresAt: expires})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": midnight.CodeNotFound})
		}
	}))
	defer server.Close()

	client := midnight.NewHTTPClient(server.URL, "", time.Second, nil)
	ctx := context.Background()

	ok, err := client.IsApprovedForResale(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	approval, err := client.GetResaleApproval(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.True(t, expires.Equal(approval.ExpiresAt))

	approval, err = client.GetResaleApproval(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, approval)
}
