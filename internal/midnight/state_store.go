package midnight

import (
	"context"
	"sync"
	"time"

	"ms-ticket-lifecycle/internal/models"
)

type TransferEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketState is the private record kept per ticket.
type TicketState struct {
	TicketID        string              `json:"ticketId"`
	OwnerCommitment string              `json:"ownerCommitment"`
	MetadataHash    string              `json:"metadataHash"`
	Status          models.TicketStatus `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
	TransferredAt   *time.Time          `json:"transferredAt,omitempty"`
	Transfers       []TransferEntry     `json:"transfers,omitempty"`
}

type ResaleApproval struct {
	TicketID   string    `json:"ticketId"`
	ApprovedAt time.Time `json:"approvedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the approval window has closed at now.
func (a *ResaleApproval) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Entry is everything the contract knows about one ticket.
type Entry struct {
	Ticket   TicketState
	Approval *ResaleApproval
}

// StateStore persists private state. Update must apply fn and persist the
// result atomically with respect to other calls for the same ticket; when fn
// returns an error nothing is written.
type StateStore interface {
	Create(ctx context.Context, state TicketState) error
	Get(ctx context.Context, ticketID string) (*Entry, error)
	Update(ctx context.Context, ticketID string, fn func(entry *Entry) error) error
}

// MemoryStateStore keeps private state in process memory.
type MemoryStateStore struct {
	mu        sync.Mutex
	tickets   map[string]TicketState
	approvals map[string]ResaleApproval
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		tickets:   make(map[string]TicketState),
		approvals: make(map[string]ResaleApproval),
	}
}

func (m *MemoryStateStore) Create(_ context.Context, state TicketState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tickets[state.TicketID]; exists {
		return ErrAlreadyExists
	}
	m.tickets[state.TicketID] = state
	return nil
}

func (m *MemoryStateStore) Get(_ context.Context, ticketID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ticketID)
}

func (m *MemoryStateStore) Update(_ context.Context, ticketID string, fn func(entry *Entry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.load(ticketID)
	if err != nil {
		return err
	}
	if err := fn(entry); err != nil {
		return err
	}

	m.tickets[ticketID] = entry.Ticket
	if entry.Approval == nil {
		delete(m.approvals, ticketID)
	} else {
		m.approvals[ticketID] = *entry.Approval
	}
	return nil
}

// load copies state out so callers never alias the maps.
func (m *MemoryStateStore) load(ticketID string) (*Entry, error) {
	state, ok := m.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	state.Transfers = append([]TransferEntry(nil), state.Transfers...)

	entry := &Entry{Ticket: state}
	if approval, ok := m.approvals[ticketID]; ok {
		a := approval
		entry.Approval = &a
	}
	return entry, nil
}
