package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

const blockColumns = `
	number, hash, parent_hash, miner, difficulty::text, COALESCE(total_difficulty::text, ''),
	gas_used, gas_limit, COALESCE(base_fee::text, ''), size, nonce::text, extra_data,
	timestamp, tx_count, uncle_count, tx_hashes`

// LatestBlockNumber returns the highest stored block. ok is false on an empty store.
func (s *Store) LatestBlockNumber(ctx context.Context) (uint64, bool, error) {
	var number *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(number) FROM blocks`).Scan(&number); err != nil {
		return 0, false, err
	}
	if number == nil {
		return 0, false, nil
	}
	return uint64(*number), true, nil
}

// InsertBlockBatch writes blocks and their transactions in one database transaction.
// Transactions are queued ahead of the blocks so a block row is never visible without them.
// Rows that already exist are left unchanged.
func (s *Store) InsertBlockBatch(ctx context.Context, blocks []model.Block, txs []model.Transaction) error {
	if len(blocks) == 0 && len(txs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(`
			INSERT INTO transactions (
				hash, block_number, block_hash, tx_index, from_address, to_address, contract_address,
				value, gas, gas_used, gas_price, nonce, input, status, timestamp
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT DO NOTHING
		`,
			tx.Hash,
			int64(tx.BlockNumber),
			tx.BlockHash,
			int64(tx.TxIndex),
			tx.From,
			nullable(tx.To),
			nullable(tx.ContractAddress),
			numeric(tx.Value),
			int64(tx.Gas),
			int64(tx.GasUsed),
			numeric(tx.GasPrice),
			int64(tx.Nonce),
			tx.Input,
			int16(tx.Status),
			int64(tx.Timestamp),
		)
	}
	for _, block := range blocks {
		txHashes := block.TxHashes
		if txHashes == nil {
			txHashes = []string{}
		}
		batch.Queue(`
			INSERT INTO blocks (
				number, hash, parent_hash, miner, difficulty, total_difficulty, gas_used, gas_limit,
				base_fee, size, nonce, extra_data, timestamp, tx_count, uncle_count, tx_hashes
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT DO NOTHING
		`,
			int64(block.Number),
			block.Hash,
			block.ParentHash,
			block.Miner,
			numeric(block.Difficulty),
			nullable(block.TotalDifficulty),
			int64(block.GasUsed),
			int64(block.GasLimit),
			nullable(block.BaseFee),
			int64(block.Size),
			strconv.FormatUint(block.Nonce, 10),
			block.ExtraData,
			int64(block.Timestamp),
			block.TxCount,
			block.UncleCount,
			txHashes,
		)
	}

	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin block batch: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx)
	}()

	if err := execBatch(ctx, dbTx, batch); err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert block batch: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("commit block batch: %w", err)
	}
	return nil
}

// RecentBlocks returns the latest limit stored blocks in ascending order.
func (s *Store) RecentBlocks(ctx context.Context, limit int) ([]model.Block, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT`+blockColumns+` FROM blocks ORDER BY number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	blocks, err := collectBlocks(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

// BlocksInRange returns stored blocks in [from, to] in ascending order.
func (s *Store) BlocksInRange(ctx context.Context, from, to uint64) ([]model.Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+blockColumns+` FROM blocks WHERE number BETWEEN $1 AND $2 ORDER BY number`,
		int64(from), int64(to),
	)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

// GetBlock returns one stored block.
func (s *Store) GetBlock(ctx context.Context, number uint64) (model.Block, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+blockColumns+` FROM blocks WHERE number = $1`, int64(number))
	if err != nil {
		return model.Block{}, false, err
	}
	blocks, err := collectBlocks(rows)
	if err != nil {
		return model.Block{}, false, err
	}
	if len(blocks) == 0 {
		return model.Block{}, false, nil
	}
	return blocks[0], true, nil
}

func collectBlocks(rows pgx.Rows) ([]model.Block, error) {
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		var (
			block model.Block
			nonce string
		)
		if err := rows.Scan(
			&block.Number,
			&block.Hash,
			&block.ParentHash,
			&block.Miner,
			&block.Difficulty,
			&block.TotalDifficulty,
			&block.GasUsed,
			&block.GasLimit,
			&block.BaseFee,
			&block.Size,
			&nonce,
			&block.ExtraData,
			&block.Timestamp,
			&block.TxCount,
			&block.UncleCount,
			&block.TxHashes,
		); err != nil {
			return nil, err
		}
		block.Nonce, _ = strconv.ParseUint(nonce, 10, 64)
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// RecentGasPrices returns gas prices of the latest limit transactions that paid for gas.
func (s *Store) RecentGasPrices(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT gas_price::text FROM transactions
		WHERE gas_price > 0
		ORDER BY block_number DESC, tx_index DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []string
	for rows.Next() {
		var price string
		if err := rows.Scan(&price); err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(tx_count), 0)::bigint FROM blocks`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TransactionsByAddress returns transactions sent or received by address, newest first.
func (s *Store) TransactionsByAddress(ctx context.Context, address string, limit, offset int) ([]model.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT hash, block_number, block_hash, tx_index, from_address, COALESCE(to_address, ''),
			COALESCE(contract_address, ''), value::text, gas, gas_used, gas_price::text, nonce,
			input, status, timestamp
		FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_number DESC, tx_index DESC
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var (
			tx     model.Transaction
			status int16
		)
		if err := rows.Scan(
			&tx.Hash,
			&tx.BlockNumber,
			&tx.BlockHash,
			&tx.TxIndex,
			&tx.From,
			&tx.To,
			&tx.ContractAddress,
			&tx.Value,
			&tx.Gas,
			&tx.GasUsed,
			&tx.GasPrice,
			&tx.Nonce,
			&tx.Input,
			&status,
			&tx.Timestamp,
		); err != nil {
			return nil, err
		}
		tx.Status = uint64(status)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// WindowAddresses returns the distinct senders, recipients, created contracts and miners
// active in [from, to], excluding the zero address.
func (s *Store) WindowAddresses(ctx context.Context, from, to uint64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address FROM (
			SELECT from_address AS address FROM transactions WHERE block_number BETWEEN $1 AND $2
			UNION
			SELECT to_address FROM transactions WHERE block_number BETWEEN $1 AND $2 AND to_address IS NOT NULL
			UNION
			SELECT contract_address FROM transactions WHERE block_number BETWEEN $1 AND $2 AND contract_address IS NOT NULL
			UNION
			SELECT miner FROM blocks WHERE number BETWEEN $1 AND $2
		) active
		WHERE address <> $3
		ORDER BY address
	`, int64(from), int64(to), scan.ZeroAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	return addresses, rows.Err()
}
