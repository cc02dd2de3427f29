package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"ms-ticket-lifecycle/internal/models"
)

const (
	DefaultWindowDays = 7
	MaxWindowDays     = 90
)

// Service aggregates lifecycle activity from the ticket and audit tables.
type Service struct {
	db  *bun.DB
	Now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, Now: time.Now}
}

// LifecycleSummary is the organizer dashboard view of the ticket book.
type LifecycleSummary struct {
	TotalTickets int                         `json:"totalTickets"`
	ByStatus     map[models.TicketStatus]int `json:"byStatus"`
	Daily        []DailyOperations           `json:"daily"`
}

// DailyOperations counts audited operations on one UTC day.
type DailyOperations struct {
	Date          string `json:"date"`
	Mint          int    `json:"mint"`
	Cancel        int    `json:"cancel"`
	RequestResale int    `json:"requestResale"`
	Transfer      int    `json:"transfer"`
}

func (d *DailyOperations) add(op models.Operation) {
	switch op {
	case models.OperationMint:
		d.Mint++
	case models.OperationCancel:
		d.Cancel++
	case models.OperationRequestResale:
		d.RequestResale++
	case models.OperationTransfer:
		d.Transfer++
	}
}

// Summary returns ticket counts per status and per-day operation counts for
// the last days days, today included. Days with no activity are omitted.
func (s *Service) Summary(ctx context.Context, days int) (*LifecycleSummary, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if days > MaxWindowDays {
		days = MaxWindowDays
	}

	type statusCount struct {
		Status models.TicketStatus `bun:"status"`
		Count  int                 `bun:"count"`
	}
	var counts []statusCount
	err := s.db.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}

	summary := &LifecycleSummary{
		ByStatus: map[models.TicketStatus]int{
			models.TicketStatusActive:      0,
			models.TicketStatusCanceled:    0,
			models.TicketStatusTransferred: 0,
		},
		Daily: []DailyOperations{},
	}
	for _, c := range counts {
		summary.ByStatus[c.Status] = c.Count
		summary.TotalTickets += c.Count
	}

	now := s.Now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	// Bucketed in Go so the same query runs on SQLite and Postgres.
	var entries []models.AuditLog
	err = s.db.NewSelect().
		Model(&entries).
		Column("operation", "timestamp").
		Where("? >= ?", bun.Ident("timestamp"), since).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyOperations)
	for _, e := range entries {
		day := e.Timestamp.UTC().Format(time.DateOnly)
		bucket, ok := byDay[day]
		if !ok {
			bucket = &DailyOperations{Date: day}
			byDay[day] = bucket
		}
		bucket.add(e.Operation)
	}
	for _, bucket := range byDay {
		summary.Daily = append(summary.Daily, *bucket)
	}
	sort.Slice(summary.Daily, func(i, j int) bool {
		return summary.Daily[i].Date < summary.Daily[j].Date
	})

	return summary, nil
}
