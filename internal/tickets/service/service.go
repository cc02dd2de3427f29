package tickets

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/cardano"
	"ms-ticket-lifecycle/internal/locking"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/midnight"
	"ms-ticket-lifecycle/internal/models"
	"ms-ticket-lifecycle/internal/monitoring"
	"ms-ticket-lifecycle/internal/tickets/db"
	"ms-ticket-lifecycle/internal/tickets/qr"
)

// DefaultTransferApprovalLifetime bounds how long a pending transfer approval
// waits for ledger confirmation.
const DefaultTransferApprovalLifetime = 24 * time.Hour

type TicketDBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error)
	TicketExists(ctx context.Context, ticketID string) (bool, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status models.TicketStatus, burnTxHash string) error
	UpdateTicketOwner(ctx context.Context, ticketID, ownerCommitment string, status models.TicketStatus) error
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, ticketID string) ([]models.AuditLog, error)
	CreateTransferApproval(ctx context.Context, approval *models.TransferApproval) error
	GetTransferApproval(ctx context.Context, ticketID string) (*models.TransferApproval, error)
	UpdateTransferApprovalStatus(ctx context.Context, ticketID string, status models.TransferApprovalStatus) error
}

// Signer produces the organizer signature the private-state contract checks
// on mint and cancel.
type Signer interface {
	Sign(message string) string
}

type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event models.TicketEvent) error
}

// TicketService sequences every lifecycle operation across private state,
// the ledger and the record store.
type TicketService struct {
	DB       TicketDBLayer
	Midnight midnight.PrivateStateClient
	Ledger   cardano.LedgerClient
	Signer   Signer
	Events   EventPublisher
	QR       *qr.QRGenerator
	Locks    locking.Locker
	Metrics  *monitoring.Metrics
	Logger   *logger.Logger

	TransferApprovalLifetime time.Duration
	Now                      func() time.Time
}

func NewTicketService(store TicketDBLayer, privateState midnight.PrivateStateClient, ledger cardano.LedgerClient, signer Signer, log *logger.Logger) *TicketService {
	if log == nil {
		log = logger.Discard()
	}
	return &TicketService{
		DB:                       store,
		Midnight:                 privateState,
		Ledger:                   ledger,
		Signer:                   signer,
		Logger:                   log,
		TransferApprovalLifetime: DefaultTransferApprovalLifetime,
		Now:                      func() time.Time { return time.Now().UTC() },
	}
}

func (s *TicketService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// lock takes the per-ticket lock when a Locker is configured. The returned
// func releases it.
func (s *TicketService) lock(ctx context.Context, ticketID string) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	owner := uuid.New().String()
	if err := s.Locks.Acquire(ctx, ticketID, owner); err != nil {
		if errors.Is(err, locking.ErrHeld) {
			return nil, apperror.Conflict(fmt.Sprintf("ticket %s is being modified by another request", ticketID))
		}
		return nil, apperror.Downstream("failed to lock ticket", err)
	}
	return func() {
		// the caller's context may already be done
		if err := s.Locks.Release(context.WithoutCancel(ctx), ticketID, owner); err != nil {
			s.Logger.Warn("LOCK", fmt.Sprintf("Failed to release lock on ticket %s: %v", ticketID, err))
		}
	}, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateRequest turns validator field errors into one ValidationError
// naming every offending field.
func validateRequest(req any) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Validation(err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fieldPath(fe)))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fieldPath(fe), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fieldPath(fe), fe.Tag()))
		}
	}
	return apperror.Validation(strings.Join(msgs, "; "))
}

// fieldPath drops the request type name from the namespace, leaving
// "buyerProof.signature" rather than "ResaleRequest.buyerProof.signature".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// observe is deferred by every lifecycle operation with a pointer to its
// named error result.
func (s *TicketService) observe(op models.Operation, ticketID string, start time.Time, errp *error) {
	code := "OK"
	if *errp != nil {
		code = string(apperror.CodeOf(*errp))
		s.Logger.Warn("TICKET", fmt.Sprintf("%s %s failed: %v", op, ticketID, *errp))
	}
	s.Metrics.TrackOperation(string(op), code, time.Since(start))
}

// call times one collaborator call.
func (s *TicketService) call(collaborator, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.Metrics.TrackDownstream(collaborator, name, err, time.Since(start))
	return err
}

// loadActive fetches a ticket record and requires it to be active.
func (s *TicketService) loadActive(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByTicketID(ctx, ticketID)
	if err != nil {
		return nil, storeError(fmt.Sprintf("ticket %s", ticketID), err)
	}
	if !ticket.IsActive() {
		return nil, apperror.InvalidState(fmt.Sprintf("ticket %s is %s", ticketID, ticket.Status))
	}
	return ticket, nil
}

// record appends the audit entry for a finished operation and then publishes
// the matching event. Publish failures are only logged.
func (s *TicketService) record(ctx context.Context, op models.Operation, ticketID, requestorID string, status models.TicketStatus, details map[string]any) error {
	entry := &models.AuditLog{
		ID:          uuid.New().String(),
		Operation:   op,
		TicketID:    ticketID,
		RequestorID: requestorID,
		Details:     details,
		Timestamp:   s.now(),
	}
	if err := s.DB.CreateAuditLog(ctx, entry); err != nil {
		return storeError("audit log", err)
	}
	s.Logger.LogTicket(string(op), ticketID, fmt.Sprintf("by %s", requestorID))

	if s.Events == nil {
		return nil
	}
	event := models.TicketEvent{
		EventID:     entry.ID,
		Operation:   op,
		TicketID:    ticketID,
		RequestorID: requestorID,
		Status:      status,
		Details:     details,
		OccurredAt:  entry.Timestamp,
	}
	if err := s.Events.PublishTicketEvent(ctx, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event for ticket %s: %v", op, ticketID, err))
	}
	return nil
}

func storeError(subject string, err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return apperror.NotFound(subject + " not found")
	case errors.Is(err, db.ErrConflict):
		return apperror.Conflict(subject + " already exists")
	default:
		return apperror.Wrap(apperror.CodeInternal, "record store failure", err)
	}
}

// privateStateError maps contract sentinels onto the caller-facing taxonomy.
// Anything unrecognized is a downstream failure.
func privateStateError(ticketID string, err error) error {
	switch {
	case errors.Is(err, midnight.ErrAlreadyExists):
		return apperror.Conflict(fmt.Sprintf("ticket %s already exists", ticketID))
	case errors.Is(err, midnight.ErrNotFound):
		return apperror.NotFound(fmt.Sprintf("ticket %s not found in private state", ticketID))
	case errors.Is(err, midnight.ErrInvalidState):
		return apperror.InvalidState(fmt.Sprintf("ticket %s is not active", ticketID))
	case errors.Is(err, midnight.ErrInvalidSignature):
		return apperror.Wrap(apperror.CodeAuthorization, "organizer signature rejected", err)
	case errors.Is(err, midnight.ErrInvalidProof):
		return apperror.InvalidProof("proof failed validation")
	case errors.Is(err, midnight.ErrNotApproved):
		return apperror.NotApproved(fmt.Sprintf("ticket %s is not approved for resale", ticketID))
	case errors.Is(err, midnight.ErrExpired):
		return apperror.ExpiredApproval(fmt.Sprintf("resale approval for ticket %s has expired", ticketID))
	case errors.Is(err, midnight.ErrInvalidRequest):
		return apperror.Wrap(apperror.CodeValidation, "private state rejected the request", err)
	default:
		return apperror.Downstream("private-state call failed", err)
	}
}
