package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

// ExistingBlockStats returns the block numbers in [from, to] that already have a stats row.
func (s *Store) ExistingBlockStats(ctx context.Context, from, to uint64) (map[uint64]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT number FROM block_stats WHERE number BETWEEN $1 AND $2`,
		int64(from), int64(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[uint64]struct{})
	for rows.Next() {
		var number uint64
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		existing[number] = struct{}{}
	}
	return existing, rows.Err()
}

// UpsertBlockStats writes per-block stats. Existing rows are only overwritten when rescan is set.
func (s *Store) UpsertBlockStats(ctx context.Context, stats []model.BlockStat, rescan bool) error {
	if len(stats) == 0 {
		return nil
	}
	conflict := `ON CONFLICT (number) DO NOTHING`
	if rescan {
		conflict = `
			ON CONFLICT (number) DO UPDATE SET
				block_time = EXCLUDED.block_time,
				tx_count = EXCLUDED.tx_count,
				gas_used = EXCLUDED.gas_used,
				uncle_count = EXCLUDED.uncle_count,
				difficulty = EXCLUDED.difficulty`
	}

	batch := &pgx.Batch{}
	for _, stat := range stats {
		batch.Queue(`
			INSERT INTO block_stats (number, block_time, tx_count, gas_used, uncle_count, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6)
		`+conflict,
			int64(stat.Number),
			int64(stat.BlockTime),
			stat.TxCount,
			int64(stat.GasUsed),
			stat.UncleCount,
			numeric(stat.Difficulty),
		)
	}
	return execBatch(ctx, s.pool, batch)
}

// BlockStatsRange returns stats rows in [from, to] in ascending order.
func (s *Store) BlockStatsRange(ctx context.Context, from, to uint64) ([]model.BlockStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT number, block_time, tx_count, gas_used, uncle_count, difficulty::text
		FROM block_stats WHERE number BETWEEN $1 AND $2 ORDER BY number
	`, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.BlockStat
	for rows.Next() {
		var stat model.BlockStat
		if err := rows.Scan(
			&stat.Number,
			&stat.BlockTime,
			&stat.TxCount,
			&stat.GasUsed,
			&stat.UncleCount,
			&stat.Difficulty,
		); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
