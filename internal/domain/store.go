package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SlotStore persists slot state so ownership survives restarts. The arena in
// memory remains authoritative at runtime; the store is write-behind.
type SlotStore interface {
	Save(ctx context.Context, slot Slot) error
	SaveAll(ctx context.Context, slots []Slot) error
	Get(ctx context.Context, day int) (Slot, error)
	List(ctx context.Context) ([]Slot, error)
	Count(ctx context.Context) (int64, error)
}

// SaleStore persists completed ownership sales.
type SaleStore interface {
	Insert(ctx context.Context, sale Sale) error
	GetByID(ctx context.Context, id string) (Sale, error)
	ListByDay(ctx context.Context, day int, opts ListOpts) ([]Sale, error)
	ListRecent(ctx context.Context, limit int) ([]Sale, error)
	ListBefore(ctx context.Context, before time.Time) ([]Sale, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only log of every state transition.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
