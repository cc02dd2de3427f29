package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-ticket-lifecycle/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type DB struct {
	Bun *bun.DB
}

// CreateTables creates the schema if it does not exist. Postgres
// deployments use the migrations package instead.
func (d *DB) CreateTables(ctx context.Context) error {
	for _, model := range []any{
		(*models.Ticket)(nil),
		(*models.AuditLog)(nil),
		(*models.TransferApproval)(nil),
	} {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := d.Bun.NewCreateIndex().
		Model((*models.AuditLog)(nil)).
		Index("idx_audit_logs_ticket_id").
		IfNotExists().
		Column("ticket_id").
		Exec(ctx)
	return err
}

// isUniqueViolation recognizes unique constraint failures from Postgres and
// SQLite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("ticket %s: %w", ticket.TicketID, ErrConflict)
	}
	return err
}

func (d *DB) GetTicketByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) TicketExists(ctx context.Context, ticketID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("ticket_id = ?", ticketID).
		Exists(ctx)
}

// UpdateTicketStatus sets the status and, when burnTxHash is non-empty, the
// burn transaction hash.
func (d *DB) UpdateTicketStatus(ctx context.Context, ticketID string, status models.TicketStatus, burnTxHash string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("ticket_id = ?", ticketID)
	if burnTxHash != "" {
		q = q.Set("burn_tx_hash = ?", burnTxHash)
	}
	return affectedOne(q.Exec(ctx))
}

// UpdateTicketOwner records a transfer: new owner commitment and status.
func (d *DB) UpdateTicketOwner(ctx context.Context, ticketID, ownerCommitment string, status models.TicketStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("owner_commitment = ?", ownerCommitment).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := d.Bun.NewInsert().Model(entry).Exec(ctx)
	return err
}

// ListAuditLogs returns a ticket's audit entries, oldest first.
func (d *DB) ListAuditLogs(ctx context.Context, ticketID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := d.Bun.NewSelect().
		Model(&logs).
		Where("ticket_id = ?", ticketID).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (d *DB) CreateTransferApproval(ctx context.Context, approval *models.TransferApproval) error {
	_, err := d.Bun.NewInsert().Model(approval).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("transfer approval for %s: %w", approval.TicketID, ErrConflict)
	}
	return err
}

func (d *DB) GetTransferApproval(ctx context.Context, ticketID string) (*models.TransferApproval, error) {
	var approval models.TransferApproval
	err := d.Bun.NewSelect().
		Model(&approval).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

func (d *DB) UpdateTransferApprovalStatus(ctx context.Context, ticketID string, status models.TransferApprovalStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.TransferApproval)(nil)).
		Set("status = ?", status).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return affectedOne(res, err)
}
