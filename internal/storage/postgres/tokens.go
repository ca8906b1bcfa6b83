package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

// InsertTokenTransfers stores transfer logs. A transfer already stored is left untouched.
func (s *Store) InsertTokenTransfers(ctx context.Context, transfers []model.TokenTransfer) error {
	if len(transfers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range transfers {
		batch.Queue(`
			INSERT INTO token_transfers (
				token_address, tx_hash, log_index, token_id, from_address, to_address, block_number, timestamp
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (token_address, tx_hash, log_index) DO NOTHING
		`,
			t.TokenAddress,
			t.TxHash,
			int64(t.LogIndex),
			numeric(t.TokenID),
			t.From,
			t.To,
			int64(t.BlockNumber),
			int64(t.Timestamp),
		)
	}
	return execBatch(ctx, s.pool, batch)
}

// DeleteTokenTransfers removes every stored transfer of a token.
func (s *Store) DeleteTokenTransfers(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM token_transfers WHERE token_address = $1`, token)
	return err
}

// TokenTransfers returns the full transfer history of a token in chain order.
func (s *Store) TokenTransfers(ctx context.Context, token string) ([]model.TokenTransfer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, tx_hash, log_index, token_id::text, from_address, to_address, block_number, timestamp
		FROM token_transfers
		WHERE token_address = $1
		ORDER BY block_number, log_index
	`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []model.TokenTransfer
	for rows.Next() {
		var t model.TokenTransfer
		if err := rows.Scan(
			&t.TokenAddress,
			&t.TxHash,
			&t.LogIndex,
			&t.TokenID,
			&t.From,
			&t.To,
			&t.BlockNumber,
			&t.Timestamp,
		); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ReplaceTokenHolders swaps the holder set of a token in one transaction.
func (s *Store) ReplaceTokenHolders(ctx context.Context, token string, holders []model.TokenHolder) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin holder replace: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx)
	}()

	if _, err := dbTx.Exec(ctx, `DELETE FROM token_holders WHERE token_address = $1`, token); err != nil {
		return fmt.Errorf("delete holders: %w", err)
	}

	if len(holders) > 0 {
		batch := &pgx.Batch{}
		for _, h := range holders {
			batch.Queue(`
				INSERT INTO token_holders (token_address, holder_address, balance, rank, percentage)
				VALUES ($1, $2, $3, $4, $5)
			`,
				token,
				h.HolderAddress,
				h.Balance,
				h.Rank,
				h.Percentage,
			)
		}
		if err := execBatch(ctx, dbTx, batch); err != nil {
			return fmt.Errorf("insert holders: %w", err)
		}
	}

	return dbTx.Commit(ctx)
}

// TokenHolders returns the holders of a token by rank.
func (s *Store) TokenHolders(ctx context.Context, token string, limit int) ([]model.TokenHolder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, holder_address, balance, rank, percentage
		FROM token_holders
		WHERE token_address = $1
		ORDER BY rank
		LIMIT $2
	`, token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holders []model.TokenHolder
	for rows.Next() {
		var h model.TokenHolder
		if err := rows.Scan(&h.TokenAddress, &h.HolderAddress, &h.Balance, &h.Rank, &h.Percentage); err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}
