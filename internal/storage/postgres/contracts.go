package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

const contractColumns = `
	address, erc_class, name, symbol, decimals, COALESCE(total_supply::text, ''), creator,
	creation_tx, block_number, verified, bytecode, source_code`

// ContractsExist returns the subset of addresses that already have a contract row.
func (s *Store) ContractsExist(ctx context.Context, addresses []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(addresses))
	if len(addresses) == 0 {
		return existing, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT address FROM contracts WHERE address = ANY($1)`, addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		existing[address] = true
	}
	return existing, rows.Err()
}

// UpsertContracts inserts classified contracts. The class and verification state of an
// existing row are never changed here.
func (s *Store) UpsertContracts(ctx context.Context, contracts []model.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range contracts {
		batch.Queue(`
			INSERT INTO contracts (
				address, erc_class, name, symbol, decimals, total_supply, creator, creation_tx,
				block_number, bytecode, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			ON CONFLICT (address) DO UPDATE SET
				name = EXCLUDED.name,
				symbol = EXCLUDED.symbol,
				decimals = EXCLUDED.decimals,
				total_supply = EXCLUDED.total_supply,
				creator = COALESCE(NULLIF(contracts.creator, ''), EXCLUDED.creator),
				creation_tx = COALESCE(NULLIF(contracts.creation_tx, ''), EXCLUDED.creation_tx),
				block_number = LEAST(contracts.block_number, EXCLUDED.block_number)
		`,
			c.Address,
			int(c.ERCClass),
			c.Name,
			c.Symbol,
			int16(c.Decimals),
			nullable(c.TotalSupply),
			c.Creator,
			c.CreationTx,
			int64(c.BlockNumber),
			c.Bytecode,
		)
	}
	return execBatch(ctx, s.pool, batch)
}

// ContractsByClass returns every contract of one class, oldest first.
func (s *Store) ContractsByClass(ctx context.Context, class model.ERCClass) ([]model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+contractColumns+` FROM contracts WHERE erc_class = $1 ORDER BY block_number, address`,
		int(class),
	)
	if err != nil {
		return nil, err
	}
	return collectContracts(rows)
}

// GetContract returns one contract row.
func (s *Store) GetContract(ctx context.Context, address string) (model.Contract, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+contractColumns+` FROM contracts WHERE address = $1`, address)
	if err != nil {
		return model.Contract{}, false, err
	}
	contracts, err := collectContracts(rows)
	if err != nil {
		return model.Contract{}, false, err
	}
	if len(contracts) == 0 {
		return model.Contract{}, false, nil
	}
	return contracts[0], true, nil
}

// MarkContractVerified flips verified to true and stores the source when given.
// It reports whether a row changed. A verified contract is never unverified.
func (s *Store) MarkContractVerified(ctx context.Context, address, sourceCode string) (bool, error) {
	var updated string
	err := s.pool.QueryRow(ctx, `
		UPDATE contracts SET
			verified = true,
			source_code = CASE WHEN $2 <> '' THEN $2 ELSE source_code END
		WHERE address = $1 AND verified = false
		RETURNING address
	`, address, sourceCode).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func collectContracts(rows pgx.Rows) ([]model.Contract, error) {
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		var (
			c        model.Contract
			class    int
			decimals int16
		)
		if err := rows.Scan(
			&c.Address,
			&class,
			&c.Name,
			&c.Symbol,
			&decimals,
			&c.TotalSupply,
			&c.Creator,
			&c.CreationTx,
			&c.BlockNumber,
			&c.Verified,
			&c.Bytecode,
			&c.SourceCode,
		); err != nil {
			return nil, err
		}
		c.ERCClass = model.ERCClass(class)
		c.Decimals = uint8(decimals)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}
