package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// PositionJournal implements domain.PositionJournal. Open positions are
// stored as JSONB snapshots; closing moves the position to closed_positions
// in one transaction.
type PositionJournal struct {
	pool *pgxpool.Pool
}

// NewPositionJournal creates a new PositionJournal backed by the given pool.
func NewPositionJournal(pool *pgxpool.Pool) *PositionJournal {
	return &PositionJournal{pool: pool}
}

// SavePosition upserts the latest snapshot of an open position. Once the
// position has a closed row the write is refused with
// domain.ErrPositionClosed, so a snapshot that lost a race with SaveClosed
// cannot bring the position back.
func (j *PositionJournal) SavePosition(ctx context.Context, pos domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("postgres: marshal position %s: %w", pos.ID, err)
	}

	const query = `
		INSERT INTO positions (id, token_address, symbol, data, entry_time, updated_at)
		SELECT $1::text, $2::text, $3::text, $4::jsonb, $5::timestamptz, NOW()
		WHERE NOT EXISTS (SELECT 1 FROM closed_positions WHERE position_id = $1::text)
		ON CONFLICT (id) DO UPDATE SET
			data       = EXCLUDED.data,
			updated_at = NOW()`
	tag, err := j.pool.Exec(ctx, query, pos.ID, pos.TokenAddress, pos.Symbol, data, pos.EntryTime)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, domain.ErrPositionClosed)
	}
	return nil
}

// SaveClosed records the closed position and drops its open snapshot. A
// second call for the same position is a no-op.
func (j *PositionJournal) SaveClosed(ctx context.Context, cp domain.ClosedPosition) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin close %s: %w", cp.PositionID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	levels := cp.LevelsHit
	if levels == nil {
		levels = []float64{}
	}

	const insert = `
		INSERT INTO closed_positions (
			position_id, symbol, token_address, entry_price, exit_price, avg_exit_price,
			entry_time, exit_time, initial_size, levels_hit, exit_reason, profit_loss_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (position_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insert,
		cp.PositionID, cp.Symbol, cp.TokenAddress, cp.EntryPrice, cp.ExitPrice, cp.AvgExitPrice,
		cp.EntryTime, cp.ExitTime, cp.InitialSize, levels, string(cp.ExitReason), cp.ProfitLossPct,
	); err != nil {
		return fmt.Errorf("postgres: insert closed position %s: %w", cp.PositionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, cp.PositionID); err != nil {
		return fmt.Errorf("postgres: delete open position %s: %w", cp.PositionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit close %s: %w", cp.PositionID, err)
	}
	return nil
}

// LoadOpen returns every journaled open position without a closed row,
// oldest first.
func (j *PositionJournal) LoadOpen(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT p.data FROM positions p
		WHERE NOT EXISTS (SELECT 1 FROM closed_positions c WHERE c.position_id = p.id)
		ORDER BY p.entry_time, p.id`
	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		var p domain.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal open position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load open positions rows: %w", err)
	}
	return out, nil
}

const closedSelectCols = `position_id, symbol, token_address, entry_price, exit_price, avg_exit_price,
	entry_time, exit_time, initial_size, levels_hit, exit_reason, profit_loss_pct`

// ListClosed returns closed positions, most recent exit first, with
// pagination and optional exit time filtering.
func (j *PositionJournal) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	query := `SELECT ` + closedSelectCols + ` FROM closed_positions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND exit_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND exit_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY exit_time DESC, position_id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, scanClosed)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return out, nil
}

func scanClosed(row pgx.CollectableRow) (domain.ClosedPosition, error) {
	var (
		c      domain.ClosedPosition
		reason string
	)
	err := row.Scan(
		&c.PositionID, &c.Symbol, &c.TokenAddress,
		&c.EntryPrice, &c.ExitPrice, &c.AvgExitPrice,
		&c.EntryTime, &c.ExitTime, &c.InitialSize,
		&c.LevelsHit, &reason, &c.ProfitLossPct,
	)
	c.ExitReason = domain.ExitReason(reason)
	if len(c.LevelsHit) == 0 {
		c.LevelsHit = nil
	}
	return c, err
}

// Compile-time interface check.
var _ domain.PositionJournal = (*PositionJournal)(nil)
