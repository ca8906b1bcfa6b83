package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

// LoadProgress returns last_scanned_block for a scan type.
func (s *Store) LoadProgress(ctx context.Context, scanType string) (uint64, bool, error) {
	if scanType == "" {
		return 0, false, fmt.Errorf("scan type required")
	}
	var last uint64
	row := s.pool.QueryRow(ctx, `SELECT last_scanned_block FROM scan_progress WHERE scan_type=$1`, scanType)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return last, true, nil
}

// SaveProgress upserts last_scanned_block for a scan type. The stored cursor never moves backward,
// even when two runs of the same scan type race.
func (s *Store) SaveProgress(ctx context.Context, scanType string, lastScanned uint64) error {
	if scanType == "" {
		return fmt.Errorf("scan type required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_progress (scan_type, last_scanned_block, last_update_time)
		VALUES ($1, $2, now())
		ON CONFLICT (scan_type) DO UPDATE
		SET last_scanned_block = GREATEST(scan_progress.last_scanned_block, EXCLUDED.last_scanned_block),
			last_update_time = now()
	`, scanType, int64(lastScanned))
	return err
}

// ListProgress returns every stored scan cursor.
func (s *Store) ListProgress(ctx context.Context) ([]model.ScanProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT scan_type, last_scanned_block, last_update_time FROM scan_progress ORDER BY scan_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var progress []model.ScanProgress
	for rows.Next() {
		var p model.ScanProgress
		if err := rows.Scan(&p.ScanType, &p.LastScannedBlock, &p.LastUpdateTime); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
