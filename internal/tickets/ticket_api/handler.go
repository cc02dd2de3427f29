package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/logger"
	tickets "ms-ticket-lifecycle/internal/tickets/service"
	"ms-ticket-lifecycle/internal/utils"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{TicketService: ticketService, Logger: log}
}

// decode reads a JSON body into dst. Unknown fields are accepted.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Validation("request body is required")
		}
		return apperror.Wrap(apperror.CodeValidation, "invalid request body", err)
	}
	return nil
}

// MintTicket handles POST /api/tickets/mint
func (h *Handler) MintTicket(w http.ResponseWriter, r *http.Request) {
	var req tickets.MintRequest
	if err := decode(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	res, err := h.TicketService.Mint(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket minted successfully", res))
}

// CancelTicket handles POST /api/tickets/cancel
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	var req tickets.CancelRequest
	if err := decode(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	res, err := h.TicketService.Cancel(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket canceled successfully", res))
}

// RequestResale handles POST /api/tickets/request-resale
func (h *Handler) RequestResale(w http.ResponseWriter, r *http.Request) {
	var req tickets.ResaleRequest
	if err := decode(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	res, err := h.TicketService.RequestResale(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Resale approved", res))
}

// TransferTicket handles POST /api/tickets/transfer
func (h *Handler) TransferTicket(w http.ResponseWriter, r *http.Request) {
	var req tickets.TransferRequest
	if err := decode(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	res, err := h.TicketService.Transfer(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket transferred successfully", res))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket retrieved", ticket))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.TicketService.ListAuditLogs(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Audit log retrieved", logs))
}

// TicketQR serves the encrypted anchor QR as a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.TicketService.TicketQR(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("HTTP", fmt.Sprintf("Failed to write qr response: %v", err))
	}
}

func (h *Handler) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := h.TicketService.TransactionStatus(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "txHash"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Transaction status retrieved", tx))
}

func Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
