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

// MutateFunc edits a private copy of an open position. Returning a non-nil
// ClosedPosition closes the position; returning an error discards the edit.
type MutateFunc func(p *Position) (*ClosedPosition, error)

// PositionStore owns every open and closed position. Reads return snapshots;
// Apply serialises writers per position.
type PositionStore interface {
	Insert(ctx context.Context, pos Position) error
	Get(ctx context.Context, id string) (Position, error)
	GetByToken(ctx context.Context, tokenAddress string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]ClosedPosition, error)
	Apply(ctx context.Context, id string, fn MutateFunc) (Position, *ClosedPosition, error)
}

// PositionJournal durably records position state so open positions survive
// a restart and closed history outlives the process.
type PositionJournal interface {
	SavePosition(ctx context.Context, pos Position) error
	SaveClosed(ctx context.Context, closed ClosedPosition) error
	LoadOpen(ctx context.Context) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]ClosedPosition, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
