package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StrategyRunStore records one row per strategy start/restart/stop,
// implementing runtime.RunRecorder's fire-and-forget shape: callers expect
// no error return, so every failure here is logged rather than propagated.
type StrategyRunStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStrategyRunStore creates a new StrategyRunStore backed by the given
// connection pool.
func NewStrategyRunStore(pool *pgxpool.Pool, logger *slog.Logger) *StrategyRunStore {
	return &StrategyRunStore{pool: pool, logger: logger}
}

// RecordStart inserts a fresh run row for name.
func (s *StrategyRunStore) RecordStart(name string) {
	const query = `INSERT INTO strategy_runs (name) VALUES ($1)`
	if _, err := s.pool.Exec(context.Background(), query, name); err != nil {
		s.logger.Warn("strategy_run_store: record start failed", slog.String("strategy", name), slog.Any("error", err))
	}
}

// RecordRestart increments the restart count and records the error on the
// most recently started, still-open run for name.
func (s *StrategyRunStore) RecordRestart(name string, runErr error) {
	const query = `
		UPDATE strategy_runs SET restart_count = restart_count + 1, last_error = $2
		WHERE id = (
			SELECT id FROM strategy_runs
			WHERE name = $1 AND stopped_at IS NULL
			ORDER BY started_at DESC LIMIT 1
		)`
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	if _, err := s.pool.Exec(context.Background(), query, name, errText); err != nil {
		s.logger.Warn("strategy_run_store: record restart failed", slog.String("strategy", name), slog.Any("error", err))
	}
}

// RecordStop marks the most recently started, still-open run for name as
// stopped.
func (s *StrategyRunStore) RecordStop(name string) {
	const query = `
		UPDATE strategy_runs SET stopped_at = NOW()
		WHERE id = (
			SELECT id FROM strategy_runs
			WHERE name = $1 AND stopped_at IS NULL
			ORDER BY started_at DESC LIMIT 1
		)`
	if _, err := s.pool.Exec(context.Background(), query, name); err != nil {
		s.logger.Warn("strategy_run_store: record stop failed", slog.String("strategy", name), slog.Any("error", err))
	}
}
