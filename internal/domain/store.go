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

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice float64) error
	GetOpen(ctx context.Context, wallet string) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	ListHistory(ctx context.Context, wallet string, opts ListOpts) ([]Position, error)
}

// ArbStore persists arbitrage opportunity history.
type ArbStore interface {
	Insert(ctx context.Context, opp ArbOpportunity) error
	MarkExecuted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]ArbOpportunity, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// StrategyConfig is a named strategy configuration blob.
type StrategyConfig struct {
	Name      string
	Config    map[string]any
	Enabled   bool
	UpdatedAt time.Time
}

// StrategyConfigStore persists strategy configurations.
type StrategyConfigStore interface {
	Get(ctx context.Context, name string) (StrategyConfig, error)
	Upsert(ctx context.Context, cfg StrategyConfig) error
	List(ctx context.Context) ([]StrategyConfig, error)
}

// StrategyRunStore records one row per strategy start/restart/stop. The
// methods are fire-and-forget (no error return) to match how the
// scheduler that drives them treats persistence as best-effort.
type StrategyRunStore interface {
	RecordStart(name string)
	RecordRestart(name string, err error)
	RecordStop(name string)
}

