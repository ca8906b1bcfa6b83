package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"chainScope/internal/model"
)

// UpsertAccounts overwrites the balance snapshot of each address.
// A snapshot taken at a lower block never replaces a newer one.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []model.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, account := range accounts {
		accountType := account.Type
		if accountType == "" {
			accountType = model.AccountWallet
		}
		batch.Queue(`
			INSERT INTO accounts (address, balance, type, block_number, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (address) DO UPDATE SET
				balance = EXCLUDED.balance,
				type = EXCLUDED.type,
				block_number = EXCLUDED.block_number,
				updated_at = now()
			WHERE accounts.block_number <= EXCLUDED.block_number
		`,
			account.Address,
			numeric(account.Balance),
			string(accountType),
			int64(account.BlockNumber),
		)
	}
	return execBatch(ctx, s.pool, batch)
}

// TotalBalance returns the sum of all stored balances.
func (s *Store) TotalBalance(ctx context.Context) (*big.Int, error) {
	var sum string
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::text FROM accounts`).Scan(&sum); err != nil {
		return nil, err
	}
	total, ok := new(big.Int).SetString(sum, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance sum %q", sum)
	}
	return total, nil
}

// AccountAddressesAfter pages through stored addresses in ascending order.
func (s *Store) AccountAddressesAfter(ctx context.Context, cursor string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM accounts WHERE address > $1 ORDER BY address LIMIT $2`,
		cursor, limit,
	)
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

// UpdatePercentages rewrites percentage-of-supply for the given addresses.
func (s *Store) UpdatePercentages(ctx context.Context, addresses []string, total *big.Int) error {
	if len(addresses) == 0 {
		return nil
	}
	if total == nil {
		total = new(big.Int)
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET percentage = CASE
			WHEN $2::numeric > 0 THEN (balance * 100 / $2::numeric)::double precision
			ELSE 0
		END
		WHERE address = ANY($1)
	`, addresses, total.String())
	return err
}

// TopAccounts returns the rich list ordered by balance.
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, balance::text, type, block_number, percentage, updated_at
		FROM accounts
		ORDER BY balance DESC, address
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var (
			account     model.Account
			accountType string
		)
		if err := rows.Scan(
			&account.Address,
			&account.Balance,
			&accountType,
			&account.BlockNumber,
			&account.Percentage,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		account.Type = model.AccountType(accountType)
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
